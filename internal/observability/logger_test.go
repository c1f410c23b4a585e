package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(LoggerConfig{
		Level:  "debug",
		Format: "json",
		Output: buf,
	})
}

func TestNewLoggerDefaultsToInfoLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LoggerConfig{Format: "json", Output: buf})
	logger.Debug("should not appear")
	logger.Info("should appear")
	assert.NotContains(t, buf.String(), "should not appear")
	assert.Contains(t, buf.String(), "should appear")
}

func TestNewLoggerTextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LoggerConfig{Level: "info", Format: "text", Output: buf})
	logger.Info("hello", "key", "value")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "key=value")
}

func TestLoggerEmitsJSONWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	logger.Info("ingest_started", "repo", "owner/repo")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ingest_started", record["msg"])
	assert.Equal(t, "owner/repo", record["repo"])
}

func TestWithContextAttachesRequestAndTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, TraceIDKey, "trace-1")

	logger.InfoContext(ctx, "handled")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "trace-1", record["trace_id"])
}

func TestWithContextOmitsMissingValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	logger.InfoContext(context.Background(), "handled")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	_, hasRequestID := record["request_id"]
	assert.False(t, hasRequestID)
}

func TestWithReturnsDerivedLoggerCarryingAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	derived := logger.With("component", "reconciler")
	derived.Info("ran")

	assert.Contains(t, buf.String(), `"component":"reconciler"`)
}

func TestLogIngestPhaseIncludesCountAndDuration(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	logger.LogIngestPhase(context.Background(), "chunk", 42, 150)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "chunk", record["phase"])
	assert.Equal(t, float64(42), record["count"])
	assert.Equal(t, float64(150), record["duration_ms"])
}

func TestLogReconcileIncludesAllOutcomeCounts(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	logger.LogReconcile(context.Background(), 1, 2, 3, 4, 99)

	out := buf.String()
	assert.True(t, strings.Contains(out, `"unchanged":1`))
	assert.True(t, strings.Contains(out, `"moved":2`))
	assert.True(t, strings.Contains(out, `"upserted":3`))
	assert.True(t, strings.Contains(out, `"deleted":4`))
}

func TestUnderlyingReturnsSlogLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newTestLogger(buf)
	assert.NotNil(t, logger.Underlying())
}
