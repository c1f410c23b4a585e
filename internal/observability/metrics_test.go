package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry("mimir_test", prometheus.NewRegistry())
}

func TestRecordHTTPRequestIncrementsCounterAndHistogram(t *testing.T) {
	m := newTestCollector()
	m.RecordHTTPRequest("/v1/chat/completions", "200", 25*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/v1/chat/completions", "200")))
}

func TestTrackHTTPInFlightAddsAndSubtracts(t *testing.T) {
	m := newTestCollector()
	m.TrackHTTPInFlight("/health", 1)
	m.TrackHTTPInFlight("/health", 1)
	m.TrackHTTPInFlight("/health", -1)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsInFlight.WithLabelValues("/health")))
}

func TestRecordIngestRunAndFilesFetched(t *testing.T) {
	m := newTestCollector()
	m.RecordIngestRun("webhook", "success", 2*time.Second)
	m.RecordIngestFilesFetched(12)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.IngestRunsTotal.WithLabelValues("webhook", "success")))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.IngestFilesFetched))
}

func TestRecordIngestError(t *testing.T) {
	m := newTestCollector()
	m.RecordIngestError("fetch")
	m.RecordIngestError("fetch")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.IngestErrorsTotal.WithLabelValues("fetch")))
}

func TestRecordReconcileOutcomeTalliesAllThreeCounters(t *testing.T) {
	m := newTestCollector()
	m.RecordReconcileOutcome(5, 2, 1)

	assert.Equal(t, float64(5), testutil.ToFloat64(m.ReconcileChunksUpserted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ReconcileChunksDeleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReconcileChunksMoved))
}

func TestRecordEmbeddingAndErrors(t *testing.T) {
	m := newTestCollector()
	m.RecordEmbedding("openai", "success", 100*time.Millisecond)
	m.RecordEmbeddingError("openai", "rate_limited")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmbeddingRequests.WithLabelValues("openai", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmbeddingErrors.WithLabelValues("openai", "rate_limited")))
}

func TestRecordChatAndErrors(t *testing.T) {
	m := newTestCollector()
	m.RecordChat("anthropic", "success", 500*time.Millisecond)
	m.RecordChatError("anthropic", "timeout")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChatRequests.WithLabelValues("anthropic", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ChatErrors.WithLabelValues("anthropic", "timeout")))
}

func TestRecordRetrieve(t *testing.T) {
	m := newTestCollector()
	m.RecordRetrieve("/mcp/ask", "200", 15*time.Millisecond, 8)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetrieveRequests.WithLabelValues("/mcp/ask", "200")))
}

func TestRecordRateLimitWaitAndRejection(t *testing.T) {
	m := newTestCollector()
	m.RecordRateLimitWait("openai", 50*time.Millisecond)
	m.RecordRateLimitRejection("openai")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitRejections.WithLabelValues("openai")))
}

func TestSetComponentHealth(t *testing.T) {
	m := newTestCollector()
	m.SetComponentHealth("vectorstore", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SystemHealth.WithLabelValues("vectorstore")))

	m.SetComponentHealth("vectorstore", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.SystemHealth.WithLabelValues("vectorstore")))
}

func TestSetSystemStartTime(t *testing.T) {
	m := newTestCollector()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.SetSystemStartTime(start)
	assert.Equal(t, float64(start.Unix()), testutil.ToFloat64(m.SystemStartTime))
}
