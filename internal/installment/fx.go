package installment

import (
	"github.com/campuskit/billing/internal/installment/domain"
	"github.com/campuskit/billing/internal/installment/repository"
	"github.com/campuskit/billing/internal/installment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("installment.service",
	fx.Provide(
		repository.Provide,
		fx.Annotate(service.NewService, fx.As(new(domain.Service))),
	),
)
