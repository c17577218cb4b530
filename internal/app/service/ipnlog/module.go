package ipnlog

import "go.uber.org/fx"

// Module exposes the IPN audit log service via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
