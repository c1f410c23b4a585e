package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorContext carries the request-scoped metadata HandleError attaches to
// a logged, metered, and (optionally) Sentry-reported error.
type ErrorContext struct {
	RequestID string
	Route     string
	Stage     string // ingest stage, or provider name for embed/chat calls
	ErrorType string
	Duration  time.Duration
}

// ErrorHandler centralizes how mimir logs, counts, traces, and (optionally)
// reports an operation's error.
type ErrorHandler struct {
	logger        *Logger
	metrics       *MetricsCollector
	sentryEnabled bool
}

// NewErrorHandler builds an ErrorHandler. metrics may be nil if the caller
// only wants logging/tracing/Sentry.
func NewErrorHandler(logger *Logger, metrics *MetricsCollector, sentryEnabled bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, metrics: metrics, sentryEnabled: sentryEnabled}
}

// HandleError logs, counts, and traces err. A nil err logs the operation's
// success instead, so callers can route both outcomes through one call.
func (eh *ErrorHandler) HandleError(ctx context.Context, err error, errCtx ErrorContext) {
	if err == nil {
		eh.logger.InfoContext(ctx, "operation completed",
			"route", errCtx.Route,
			"stage", errCtx.Stage,
			"duration_ms", errCtx.Duration.Milliseconds(),
		)
		return
	}

	eh.logger.ErrorContext(ctx, "operation failed",
		"error", err.Error(),
		"error_type", errCtx.ErrorType,
		"route", errCtx.Route,
		"stage", errCtx.Stage,
		"duration_ms", errCtx.Duration.Milliseconds(),
	)

	if eh.metrics != nil && errCtx.Stage != "" {
		eh.metrics.RecordIngestError(errCtx.Stage)
	}

	if eh.sentryEnabled {
		eh.reportToSentry(ctx, err, errCtx)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(
			attribute.String("error.type", errCtx.ErrorType),
			attribute.String("error.route", errCtx.Route),
		)
	}
}

func (eh *ErrorHandler) reportToSentry(ctx context.Context, err error, errCtx ErrorContext) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("error_type", errCtx.ErrorType)
		scope.SetTag("service", "mimir")
		if errCtx.Route != "" {
			scope.SetTag("route", errCtx.Route)
		}
		if errCtx.RequestID != "" {
			scope.SetTag("request_id", errCtx.RequestID)
		}
		if traceID := TraceID(ctx); traceID != "" {
			scope.SetTag("trace_id", traceID)
		}
		sentry.CaptureException(err)
	})
}

// ExtractErrorContext builds an ErrorContext from ctx's request ID and the
// given route, leaving the caller to fill in Stage/ErrorType/Duration.
func ExtractErrorContext(ctx context.Context, route string) ErrorContext {
	errCtx := ErrorContext{Route: route}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		errCtx.RequestID = requestID
	}
	return errCtx
}
