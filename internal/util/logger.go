package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger initializes the global logger. Production writes JSON at info
// level; anything else gets the coloured console encoder at debug level.
func InitLogger(env string) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := config.Build(zap.Fields(zap.String("service", ServiceName)))
	if err != nil {
		return err
	}

	SetLogger(built)
	return nil
}

// SetLogger swaps the global logger, e.g. for an observer in tests
func SetLogger(l *zap.Logger) {
	logger = l
	zap.ReplaceGlobals(l)
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

// SyncLogger flushes any buffered log entries
func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
