// Package logging provides structured logging for the cart sync packages
// on top of Go's log/slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/errors"
)

// Logger is our wrapper around slog.Logger with additional convenience methods
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration
type Config struct {
	Level       string `json:"level" yaml:"level"`             // debug, info, warn, error
	Format      string `json:"format" yaml:"format"`           // text, json
	AddSource   bool   `json:"add_source" yaml:"add_source"`   // whether to add source code information
	Environment string `json:"environment" yaml:"environment"` // development, production, test

	// Output defaults to os.Stderr.
	Output io.Writer `json:"-" yaml:"-"`
}

// DefaultConfig is used by Default when Init was never called.
var DefaultConfig = Config{
	Level:       "info",
	Format:      "json",
	AddSource:   false,
	Environment: EnvProduction,
}

var defaultLogger *Logger

// Operation is logged as the "operation" attribute.
type Operation string

func (o Operation) LogValue() slog.Value {
	return slog.StringValue(string(o))
}

// Component is logged as the "component" attribute.
type Component string

func (c Component) LogValue() slog.Value {
	return slog.StringValue(string(c))
}

// CartErrorValuer provides structured logging for CartError
type CartErrorValuer struct {
	*errors.CartError
}

func (e CartErrorValuer) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("operation", string(e.Op)),
		slog.String("component", e.Component),
		slog.String("code", string(e.Code)),
		slog.String("kind", string(e.Kind)),
		slog.Bool("retryable", e.Retryable),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	if status := errors.StatusCode(e.Err); status != 0 {
		attrs = append(attrs, slog.Int("status_code", status))
	}

	if e.Metadata != nil {
		metadataAttrs := make([]slog.Attr, 0, len(e.Metadata))
		for k, v := range e.Metadata {
			metadataAttrs = append(metadataAttrs, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Any("metadata", slog.GroupValue(metadataAttrs...)))
	}

	return slog.GroupValue(attrs...)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(config Config, level slog.Leveler) slog.Handler {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: config.AddSource,
	}
	if config.Format == "text" || config.Environment == EnvDevelopment {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// NewLogger creates a new logger with the provided configuration
func NewLogger(config Config) *Logger {
	return &Logger{Logger: slog.New(newHandler(config, parseLevel(config.Level)))}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return NewLogger(Config{Level: "error", Format: "text", Output: io.Discard})
}

// Init initializes the global logger with the provided configuration
func Init(config Config) {
	defaultLogger = NewLogger(config)
	slog.SetDefault(defaultLogger.Logger)
}

// Default returns the default logger instance
func Default() *Logger {
	if defaultLogger == nil {
		Init(DefaultConfig)
	}
	return defaultLogger
}

// WithOperation creates a child logger with operation context
func (l *Logger) WithOperation(op Operation) *Logger {
	return &Logger{Logger: l.With(slog.Any("operation", op))}
}

// WithComponent creates a child logger with component context
func (l *Logger) WithComponent(component Component) *Logger {
	return &Logger{Logger: l.With(slog.Any("component", component))}
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	identityKey  contextKey = "identity_kind"
)

// ContextWithRequestID returns a context whose logs carry request_id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithIdentityKind returns a context whose logs carry identity_kind
// ("guest" or "authenticated"). The credential itself is never logged.
func ContextWithIdentityKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, identityKey, kind)
}

// WithContext creates a child logger with the context values set by
// ContextWithRequestID and ContextWithIdentityKind plus attrs.
func (l *Logger) WithContext(ctx context.Context, attrs ...slog.Attr) *Logger {
	contextAttrs := make([]any, 0, len(attrs)+2)

	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		contextAttrs = append(contextAttrs, slog.String("request_id", reqID))
	}
	if kind, ok := ctx.Value(identityKey).(string); ok && kind != "" {
		contextAttrs = append(contextAttrs, slog.String("identity_kind", kind))
	}

	for _, attr := range attrs {
		contextAttrs = append(contextAttrs, attr)
	}

	return &Logger{Logger: l.With(contextAttrs...)}
}

// LogError logs an error with caller information and structured attributes
func (l *Logger) LogError(ctx context.Context, err error, msg string, attrs ...slog.Attr) {
	l.logErrorAt(ctx, slog.LevelError, err, msg, attrs...)
}

// LogWarn is LogError at warn level, for failures the caller recovers from.
func (l *Logger) LogWarn(ctx context.Context, err error, msg string, attrs ...slog.Attr) {
	l.logErrorAt(ctx, slog.LevelWarn, err, msg, attrs...)
}

func (l *Logger) logErrorAt(ctx context.Context, level slog.Level, err error, msg string, attrs ...slog.Attr) {
	if !l.Enabled(ctx, level) {
		return
	}
	allAttrs := make([]any, 0, len(attrs)+2)

	var cartErr *errors.CartError
	if errors.As(err, &cartErr) {
		allAttrs = append(allAttrs, slog.Any("cart_error", CartErrorValuer{CartError: cartErr}))
	} else if err != nil {
		allAttrs = append(allAttrs, slog.String("error", err.Error()))
	}

	// skip logErrorAt and LogError/LogWarn
	pc, file, line, ok := runtime.Caller(2)
	if ok {
		name := ""
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}
		allAttrs = append(allAttrs,
			slog.Group("caller",
				slog.String("file", file),
				slog.Int("line", line),
				slog.String("function", name),
			),
		)
	}

	for _, attr := range attrs {
		allAttrs = append(allAttrs, attr)
	}

	l.Log(ctx, level, msg, allAttrs...)
}

// LogOperation logs the start and end of an operation with duration tracking
func (l *Logger) LogOperation(ctx context.Context, op Operation, component Component, fn func() error) error {
	start := time.Now()
	opLogger := l.WithOperation(op).WithComponent(component)

	opLogger.DebugContext(ctx, "operation started")

	err := fn()
	duration := time.Since(start)

	if err != nil {
		opLogger.LogError(ctx, err, "operation failed",
			slog.Duration("duration", duration),
			slog.Bool("success", false),
		)
		return err
	}

	opLogger.DebugContext(ctx, "operation completed",
		slog.Duration("duration", duration),
		slog.Bool("success", true),
	)

	return nil
}

// WithComponent returns a child of the default logger.
func WithComponent(component Component) *Logger {
	return Default().WithComponent(component)
}

func toArgs(attrs []slog.Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// Info logs through the default logger.
func Info(msg string, attrs ...slog.Attr) {
	Default().Info(msg, toArgs(attrs)...)
}

// Warn logs through the default logger.
func Warn(msg string, attrs ...slog.Attr) {
	Default().Warn(msg, toArgs(attrs)...)
}

// Error logs through the default logger.
func Error(msg string, attrs ...slog.Attr) {
	Default().Error(msg, toArgs(attrs)...)
}
