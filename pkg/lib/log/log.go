// Package log provides the component-tagged logging API every package in
// this module calls into. It wraps go.uber.org/zap, the structured logger
// the rest of this dependency family already carries, rather than reaching
// for the standard library's log/slog.
package log

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

func newLogger(w io.Writer, level zapcore.Level) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

var defaultLogger = newLogger(os.Stderr, LevelInfo)

// SetDefault installs l as the logger every LazyLogger and package-level
// helper delegates to.
func SetDefault(l *zap.SugaredLogger) { defaultLogger = l }

// Default returns the logger currently in effect.
func Default() *zap.SugaredLogger { return defaultLogger }

// New builds a console-encoded logger writing to w at level.
func New(w io.Writer, level zapcore.Level) *zap.SugaredLogger { return newLogger(w, level) }

// NewJSON builds a JSON-encoded logger writing to w at level.
func NewJSON(w io.Writer, level zapcore.Level) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), level)
	return zap.New(core).Sugar()
}

// SetOutput redirects the default logger's output to w at LevelInfo.
func SetOutput(w io.Writer) { defaultLogger = newLogger(w, LevelInfo) }

// SetOutputWithLevel redirects the default logger's output to w at level.
func SetOutputWithLevel(w io.Writer, level zapcore.Level) { defaultLogger = newLogger(w, level) }

// SetLevel rebuilds the default logger against stderr at level.
func SetLevel(level zapcore.Level) { defaultLogger = newLogger(os.Stderr, level) }

// LazyLogger tags every call with a component name and re-reads Default()
// on each call, so redirecting output with SetOutput takes effect for
// loggers that were constructed before the switch.
type LazyLogger struct {
	component string
}

// Logger returns a LazyLogger tagged with component.
func Logger(component string) *LazyLogger { return &LazyLogger{component: component} }

// WithComponent is an alias for Logger, kept for call sites that read more
// naturally tagging an existing value rather than constructing one.
func WithComponent(component string) *LazyLogger { return &LazyLogger{component: component} }

func (l *LazyLogger) Debug(msg string, args ...any) {
	defaultLogger.With("component", l.component).Debugw(msg, args...)
}

func (l *LazyLogger) Info(msg string, args ...any) {
	defaultLogger.With("component", l.component).Infow(msg, args...)
}

func (l *LazyLogger) Warn(msg string, args ...any) {
	defaultLogger.With("component", l.component).Warnw(msg, args...)
}

func (l *LazyLogger) Error(msg string, args ...any) {
	defaultLogger.With("component", l.component).Errorw(msg, args...)
}

// The Context variants exist for call sites future middleware can extend to
// pull a request/trace id out of ctx; today they log identically to their
// non-context counterparts.

func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) { l.Debug(msg, args...) }
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any)  { l.Info(msg, args...) }
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any)  { l.Warn(msg, args...) }
func (l *LazyLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Error(msg, args...)
}

// With returns a zap logger pre-tagged with this component plus args.
func (l *LazyLogger) With(args ...any) *zap.SugaredLogger {
	return defaultLogger.With("component", l.component).With(args...)
}

func Debug(msg string, args ...any) { defaultLogger.Debugw(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Infow(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warnw(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Errorw(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) { Debug(msg, args...) }
func InfoContext(ctx context.Context, msg string, args ...any)  { Info(msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any)  { Warn(msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) { Error(msg, args...) }

// TruncateID safely truncates id to at most maxLen characters, for logging
// identifiers that are usually short but must never panic if they aren't.
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}
