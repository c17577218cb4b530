package paydo

import "go.uber.org/fx"

// Module exposes the provider API client via Fx.
var Module = fx.Options(
	fx.Provide(NewClient),
)
