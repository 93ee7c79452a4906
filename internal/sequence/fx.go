package sequence

import (
	sequenceservice "github.com/campuskit/billing/internal/sequence/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence.service",
	fx.Provide(sequenceservice.NewService),
)
