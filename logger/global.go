package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// global backs the package-level helpers; it already carries the extra caller skip
var global atomic.Pointer[zap.Logger]

// SetGlobal makes l the target of the package-level helpers.
// New calls it with every logger it builds.
func SetGlobal(l *zap.Logger) {
	global.Store(l.WithOptions(zap.AddCallerSkip(1)))
}

func current() *zap.Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l := fallback()
	if global.CompareAndSwap(nil, l) {
		return l
	}
	return global.Load()
}

// fallback serves entries written before any logger was configured,
// e.g. a config file that failed to load
func fallback() *zap.Logger {
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Encoding:         "console",
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	l, err := zapConfig.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// Debug logs at debug level on the global logger
func Debug(msg string, fields ...zap.Field) {
	current().Debug(msg, fields...)
}

// Info logs at info level on the global logger
func Info(msg string, fields ...zap.Field) {
	current().Info(msg, fields...)
}

// Warn logs at warn level on the global logger
func Warn(msg string, fields ...zap.Field) {
	current().Warn(msg, fields...)
}

// Error logs at error level on the global logger
func Error(msg string, fields ...zap.Field) {
	current().Error(msg, fields...)
}

// Sync flushes the global logger
func Sync() error {
	return current().Sync()
}
