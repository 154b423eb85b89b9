package utils

import "go.uber.org/zap"

// SetupLogger builds the process-wide sugared logger. It is constructed
// before settings are loaded, so the level cannot come from configuration.
func SetupLogger() *zap.SugaredLogger {
	logger := zap.Must(zap.NewDevelopment())
	return logger.Sugar()
}
