package logger

import "go.uber.org/fx"

// Module wires the global zap logger for the application.
var Module = fx.Module("logger",
	fx.Provide(
		ConfigFromApp,
		New,
	),
)
