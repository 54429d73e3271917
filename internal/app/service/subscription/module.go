package subscription

import "go.uber.org/fx"

// Module exposes the subscription lifecycle tracker via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
