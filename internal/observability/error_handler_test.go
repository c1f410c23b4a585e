package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHandleErrorLogsSuccessWhenErrNil(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	eh := NewErrorHandler(logger, nil, false)

	eh.HandleError(context.Background(), nil, ErrorContext{Route: "/ingest", Duration: 10 * time.Millisecond})

	assert.Contains(t, buf.String(), "operation completed")
}

func TestHandleErrorLogsFailureAndRecordsMetric(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	metrics := NewMetricsCollectorWithRegistry("mimir_test", prometheus.NewRegistry())
	eh := NewErrorHandler(logger, metrics, false)

	eh.HandleError(context.Background(), errors.New("boom"), ErrorContext{
		Route:     "/ingest",
		Stage:     "fetch",
		ErrorType: "fetch_failed",
	})

	assert.Contains(t, buf.String(), "operation failed")
	assert.Contains(t, buf.String(), "boom")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.IngestErrorsTotal.WithLabelValues("fetch")))
}

func TestExtractErrorContextCarriesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	errCtx := ExtractErrorContext(ctx, "/webhook/github")
	assert.Equal(t, "req-42", errCtx.RequestID)
	assert.Equal(t, "/webhook/github", errCtx.Route)
}

func TestExtractErrorContextOmitsMissingRequestID(t *testing.T) {
	errCtx := ExtractErrorContext(context.Background(), "/health")
	assert.Equal(t, "", errCtx.RequestID)
}
