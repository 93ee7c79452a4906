package refund

import (
	"github.com/campuskit/billing/internal/refund/domain"
	"github.com/campuskit/billing/internal/refund/repository"
	"github.com/campuskit/billing/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund.service",
	fx.Provide(
		repository.Provide,
		fx.Annotate(service.NewService, fx.As(new(domain.Service))),
	),
)
