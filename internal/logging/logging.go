package logging

import "go.uber.org/zap"

// New builds a logger for env: human-readable development output for
// "local", JSON production output otherwise.
func New(env string) (*zap.Logger, error) {
	switch env {
	case "local", "":
		return zap.NewDevelopment()
	case "dev":
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	default:
		return zap.NewProduction()
	}
}
