package bill

import (
	"github.com/campuskit/billing/internal/bill/domain"
	"github.com/campuskit/billing/internal/bill/repository"
	"github.com/campuskit/billing/internal/bill/service"
	paymentdomain "github.com/campuskit/billing/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("bill.service",
	fx.Provide(
		repository.Provide,
		fx.Annotate(service.NewService,
			fx.As(new(domain.Service)),
			fx.As(new(paymentdomain.BillAssembler)),
		),
	),
)
