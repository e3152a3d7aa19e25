package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	baseMu sync.RWMutex
	base   = zap.NewNop()
)

// Init configures the process-wide base logger.
// level is one of debug/info/warn/error, format is "json" or "console".
func Init(level, format string) error {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build()
	if err != nil {
		return err
	}

	baseMu.Lock()
	base = zl
	baseMu.Unlock()
	return nil
}

// Sync flushes the base logger
func Sync() {
	baseMu.RLock()
	defer baseMu.RUnlock()
	_ = base.Sync()
}

// Logger provides structured logging for the engine
type Logger struct {
	prefix string
	logger *zap.SugaredLogger
}

// NewLogger creates a new logger with a prefix
func NewLogger(prefix string) *Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return &Logger{
		prefix: prefix,
		logger: base.Named(prefix).Sugar(),
	}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{logger: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger
func FromZap(zl *zap.Logger, prefix string) *Logger {
	if zl == nil {
		return NewNop()
	}
	return &Logger{prefix: prefix, logger: zl.Named(prefix).Sugar()}
}

// With returns a child logger carrying the given key-value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{prefix: l.prefix, logger: l.logger.With(keysAndValues...)}
}

// Info logs an informational message with key-value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key-value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key-value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, keysAndValues...)
}

// Debug logs a debug message with key-value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}
