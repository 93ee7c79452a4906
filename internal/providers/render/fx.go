package render

import "go.uber.org/fx"

var Module = fx.Module("providers.render",
	fx.Provide(
		fx.Annotate(NewPDFProvider, fx.As(new(Provider))),
		fx.Annotate(NewFileStore, fx.As(new(Store))),
	),
)
