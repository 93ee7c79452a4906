package payment

import (
	"github.com/campuskit/billing/internal/payment/domain"
	"github.com/campuskit/billing/internal/payment/repository"
	"github.com/campuskit/billing/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(
		repository.Provide,
		fx.Annotate(service.NewService, fx.As(new(domain.Service))),
	),
)
