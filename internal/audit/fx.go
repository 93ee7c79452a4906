package audit

import (
	"github.com/campuskit/billing/internal/audit/repository"
	auditservice "github.com/campuskit/billing/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(auditservice.NewService),
)
