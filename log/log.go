// Package log provides the package-level structured logger used across
// the writer. It wraps zap the way KeyValor's log package does: a
// swappable global instance behind package-level functions, so callers
// never need to thread a logger through every constructor.
package log

import (
	"go.uber.org/zap"
)

// Logger is the structured logging surface the writer depends on.
type Logger interface {
	Debugw(message string, keysAndValues ...interface{})
	Infow(message string, keysAndValues ...interface{})
	Warnw(message string, keysAndValues ...interface{})
	Errorw(message string, keysAndValues ...interface{})
	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

var l Logger = NewNop()

// SetLogger overrides the global logger instance.
func SetLogger(custom Logger) {
	l = custom
}

// NewDefault builds a production zap logger writing JSON to stderr.
func NewDefault() Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// fall back rather than panic: a broken logger must not take
		// down the writer.
		return NewNop()
	}
	return &zapLogger{sugar: logger.Sugar()}
}

// NewNop returns a logger that discards everything, used as the default
// before InitDefault or SetLogger is called.
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// InitDefault installs NewDefault as the global logger. Call once during
// process start-up; tests typically call SetLogger(NewNop()) instead.
func InitDefault() {
	SetLogger(NewDefault())
}

func (z *zapLogger) Debugw(message string, keysAndValues ...interface{}) {
	z.sugar.Debugw(message, keysAndValues...)
}

func (z *zapLogger) Infow(message string, keysAndValues ...interface{}) {
	z.sugar.Infow(message, keysAndValues...)
}

func (z *zapLogger) Warnw(message string, keysAndValues ...interface{}) {
	z.sugar.Warnw(message, keysAndValues...)
}

func (z *zapLogger) Errorw(message string, keysAndValues ...interface{}) {
	z.sugar.Errorw(message, keysAndValues...)
}

func (z *zapLogger) Sync() error {
	return z.sugar.Sync()
}

func Debugw(message string, keysAndValues ...interface{}) { l.Debugw(message, keysAndValues...) }
func Infow(message string, keysAndValues ...interface{})  { l.Infow(message, keysAndValues...) }
func Warnw(message string, keysAndValues ...interface{})  { l.Warnw(message, keysAndValues...) }
func Errorw(message string, keysAndValues ...interface{}) { l.Errorw(message, keysAndValues...) }
