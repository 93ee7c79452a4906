package gateway

import (
	"github.com/campuskit/billing/internal/gateway/adapters"
	"github.com/campuskit/billing/internal/gateway/adapters/flux"
	"github.com/campuskit/billing/internal/gateway/adapters/sandbox"
	"github.com/campuskit/billing/internal/gateway/domain"
	"github.com/campuskit/billing/internal/gateway/repository"
	"github.com/campuskit/billing/internal/gateway/service"
	"github.com/campuskit/billing/internal/gateway/webhook"
	"go.uber.org/fx"
)

func newRegistry() *adapters.Registry {
	return adapters.NewRegistry(
		flux.NewFactory(),
		sandbox.NewFactory(),
	)
}

var Module = fx.Module("gateway.service",
	fx.Provide(
		newRegistry,
		repository.Provide,
		service.NewService,
		fx.Annotate(webhook.NewService, fx.As(new(domain.WebhookService))),
	),
)
