// Package observability provides mimir's structured logging (slog +
// optional Sentry tee), Prometheus metrics, and OpenTelemetry tracing,
// grounded on the teacher's internal/observability package of the same
// name and shape.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
)

// ContextKey namespaces values mimir attaches to a request's context.
type ContextKey string

const (
	// RequestIDKey is the context key for the current request's ID.
	RequestIDKey ContextKey = "request_id"
	// TraceIDKey is the context key for the current trace's ID.
	TraceIDKey ContextKey = "trace_id"
)

// Logger wraps slog.Logger with context-aware helpers and an optional
// Sentry tee for warn/error records.
type Logger struct {
	logger *slog.Logger
}

// LoggerConfig configures the structured logger, driven by
// MIMIR_LOG_LEVEL/MIMIR_LOG_FORMAT.
type LoggerConfig struct {
	Level         string // debug, info, warn, error
	Format        string // json, text
	Output        io.Writer
	AddSource     bool
	SentryEnabled bool
}

// DefaultLoggerConfig returns mimir's default logger configuration.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:         "info",
		Format:        "json",
		Output:        os.Stdout,
		AddSource:     true,
		SentryEnabled: false,
	}
}

// sentryHandler tees warn/error records to Sentry before delegating to the
// wrapped handler.
type sentryHandler struct {
	next slog.Handler
}

func (h *sentryHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *sentryHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		attrs := make(map[string]any)
		r.Attrs(func(a slog.Attr) bool {
			attrs[a.Key] = a.Value.Any()
			return true
		})

		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetContext("log", attrs)
			scope.SetTag("logger", "slog")
			scope.SetTag("level", r.Level.String())
			sentry.CaptureMessage(r.Message)
		})
	}
	return h.next.Handle(ctx, r)
}

func (h *sentryHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sentryHandler{next: h.next.WithAttrs(attrs)}
}

func (h *sentryHandler) WithGroup(name string) slog.Handler {
	return &sentryHandler{next: h.next.WithGroup(name)}
}

// NewLogger builds a structured logger from cfg.
func NewLogger(cfg LoggerConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, handlerOpts)
	}

	if cfg.SentryEnabled {
		handler = &sentryHandler{next: handler}
	}

	return &Logger{logger: slog.New(handler)}
}

// WithContext returns a slog.Logger with the request/trace IDs found on
// ctx attached as attributes, if present.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With("request_id", requestID)
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok && traceID != "" {
		logger = logger.With("trace_id", traceID)
	}
	return logger
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Info(msg, args...)
}
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Warn(msg, args...)
}
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Error(msg, args...)
}

// With returns a derived logger with additional attributes attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

// LogIngestPhase logs one phase of the ingestion pipeline (fetch, chunk,
// reconcile) with its duration and item count.
func (l *Logger) LogIngestPhase(ctx context.Context, phase string, count int, durationMs int64) {
	l.WithContext(ctx).Info("ingest_phase",
		"phase", phase,
		"count", count,
		"duration_ms", durationMs,
	)
}

// LogReconcile logs one reconciliation run's outcome counts.
func (l *Logger) LogReconcile(ctx context.Context, unchanged, moved, upserted, deleted int, durationMs int64) {
	l.WithContext(ctx).Info("reconcile_complete",
		"unchanged", unchanged,
		"moved", moved,
		"upserted", upserted,
		"deleted", deleted,
		"duration_ms", durationMs,
	)
}

// LogRetrieve logs one retrieval call's result count and latency.
func (l *Logger) LogRetrieve(ctx context.Context, query string, resultCount int, durationMs int64) {
	l.WithContext(ctx).Info("retrieve_complete",
		"query_length", len(query),
		"result_count", resultCount,
		"duration_ms", durationMs,
	)
}

// Underlying returns the wrapped slog.Logger.
func (l *Logger) Underlying() *slog.Logger { return l.logger }
