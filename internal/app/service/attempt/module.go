package attempt

import "go.uber.org/fx"

// Module exposes the attempt ledger via Fx.
var Module = fx.Options(
	fx.Provide(NewStore),
)
