// Package logging builds the zap loggers used by the command line tools.
package logging

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w. Debug messages are only
// emitted when debug is set.
func New(w io.Writer, debug bool) *zap.Logger {
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)

	return zap.New(core)
}

// WithRun tags every entry of logger with the tool name and a fresh run id
func WithRun(logger *zap.Logger, tool string) *zap.Logger {
	return logger.With(zap.String("tool", tool), zap.String("run", uuid.NewString()))
}
