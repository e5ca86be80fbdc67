// Package logger provides the structured logger used throughout the engine.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger so call sites can use printf-style
// convenience methods without importing zap directly.
type Logger struct {
	*zap.SugaredLogger
}

// NewLogger builds a Logger at the given level. development enables
// human-readable console output and caller info; disabling it switches to
// JSON output suited for production log aggregation.
func NewLogger(level string, development bool) (*Logger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// NewNopLogger returns a Logger that discards all output, for tests.
func NewNopLogger() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithComponent returns a child logger tagged with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With("component", component)}
}

// WithChain returns a child logger tagged with the given chain ID.
func (l *Logger) WithChain(chainID uint64) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With("chain_id", chainID)}
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	return l.SugaredLogger.Sync()
}

var defaultLogger atomic.Pointer[Logger]

// GetDefaultLogger returns a process-wide fallback logger for code paths
// that run before the configured logger is wired (e.g. package init).
func GetDefaultLogger() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}

	l, err := NewLogger("debug", true)
	if err != nil {
		l = NewNopLogger()
	}
	defaultLogger.Store(l)
	return l
}

// SetDefaultLogger overrides the process-wide fallback logger.
func SetDefaultLogger(l *Logger) {
	defaultLogger.Store(l)
}
