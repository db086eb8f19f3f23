package config

import "go.uber.org/fx"

// Module exposes the loaded configuration to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
