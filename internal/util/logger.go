package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger initializes the process-wide logger. Development builds get
// colored console output with readable timestamps, production builds the
// standard JSON encoding. Entries are tagged with the program name so CLI
// output and worker output stay distinguishable in shared log streams.
func InitLogger(env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	built, err := config.Build()
	if err != nil {
		return err
	}
	logger = built.Named("inventaire")

	zap.ReplaceGlobals(logger)
	return nil
}

// GetLogger returns the process logger. Before InitLogger runs it falls
// back to a development logger, so packages used as a library never drop
// output.
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries; called on shutdown.
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
