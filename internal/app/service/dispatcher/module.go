package dispatcher

import "go.uber.org/fx"

// Module exposes the dispatcher service via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
