package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. It discards everything until Initialize runs.
var Log = zap.NewNop()

// Initialize sets up the global logger using ENV and LOG_LEVEL
func Initialize() {
	InitializeWithLevel(os.Getenv("LOG_LEVEL"))
}

// InitializeWithLevel sets up the global logger at the given level
// ("debug", "info", "warn", "error"). An empty or unknown level keeps the
// environment's default.
func InitializeWithLevel(level string) {
	// Determine environment (default to production)
	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}

	var config zap.Config
	if env == "development" || env == "dev" {
		// Development config: human-readable console output
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		// Production config: JSON structured logs
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if lvl, err := zapcore.ParseLevel(strings.TrimSpace(level)); err == nil && level != "" {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := config.Build(
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	Log = logger.With(zap.String("service", "platecalc"))
}

// Named returns a child of the global logger for one component
func Named(name string) *zap.Logger {
	return Log.Named(name)
}

// Sync flushes any buffered log entries
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
