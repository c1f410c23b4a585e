package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector holds all of mimir's Prometheus metrics, grouped by
// pipeline stage (ingest, reconcile, embed, chat, retrieve) instead of
// the teacher's MCP/indexer/search-cache groupings.
type MetricsCollector struct {
	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Ingest metrics
	IngestRunsTotal     *prometheus.CounterVec
	IngestDuration      *prometheus.HistogramVec
	IngestFilesFetched  prometheus.Counter
	IngestErrorsTotal   *prometheus.CounterVec

	// Reconcile metrics
	ReconcileRunsTotal    *prometheus.CounterVec
	ReconcileDuration     *prometheus.HistogramVec
	ReconcileChunksUpserted prometheus.Counter
	ReconcileChunksDeleted  prometheus.Counter
	ReconcileChunksMoved    prometheus.Counter

	// Embedding metrics
	EmbeddingRequests  *prometheus.CounterVec
	EmbeddingDuration  *prometheus.HistogramVec
	EmbeddingErrors    *prometheus.CounterVec

	// Chat metrics
	ChatRequests *prometheus.CounterVec
	ChatDuration *prometheus.HistogramVec
	ChatErrors   *prometheus.CounterVec

	// Retrieval metrics
	RetrieveRequests *prometheus.CounterVec
	RetrieveDuration *prometheus.HistogramVec
	RetrieveResults  *prometheus.HistogramVec

	// Rate limiting metrics
	RateLimitWaitDuration *prometheus.HistogramVec
	RateLimitRejections   *prometheus.CounterVec

	// System metrics
	SystemStartTime prometheus.Gauge
	SystemHealth    *prometheus.GaugeVec
}

// NewMetricsCollector creates and registers mimir's metrics against the
// default Prometheus registry.
func NewMetricsCollector(namespace string) *MetricsCollector {
	return NewMetricsCollectorWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates metrics against a specific
// registry, so tests can register in isolation.
func NewMetricsCollectorWithRegistry(namespace string, reg prometheus.Registerer) *MetricsCollector {
	if namespace == "" {
		namespace = "mimir"
	}

	autoCounterVec := func(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(opts, labelNames)
	}
	autoHistogramVec := func(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(opts, labelNames)
	}
	autoGaugeVec := func(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(opts, labelNames)
	}
	autoCounter := func(opts prometheus.CounterOpts) prometheus.Counter {
		return promauto.With(reg).NewCounter(opts)
	}
	autoGauge := func(opts prometheus.GaugeOpts) prometheus.Gauge {
		return promauto.With(reg).NewGauge(opts)
	}

	return &MetricsCollector{
		HTTPRequestsTotal: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests by route and status"},
			[]string{"route", "status"},
		),
		HTTPRequestDuration: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds", Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}},
			[]string{"route"},
		),
		HTTPRequestsInFlight: autoGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "http_requests_in_flight", Help: "Number of HTTP requests currently being handled"},
			[]string{"route"},
		),

		IngestRunsTotal: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "ingest_runs_total", Help: "Total ingestion runs by trigger and status"},
			[]string{"trigger", "status"},
		),
		IngestDuration: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "ingest_duration_seconds", Help: "Ingestion run duration in seconds", Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600}},
			[]string{"trigger"},
		),
		IngestFilesFetched: autoCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "ingest_files_fetched_total", Help: "Total source files fetched across all ingestion runs"},
		),
		IngestErrorsTotal: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "ingest_errors_total", Help: "Total ingestion errors by stage"},
			[]string{"stage"},
		),

		ReconcileRunsTotal: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "reconcile_runs_total", Help: "Total reconciliation runs by scope and status"},
			[]string{"scope", "status"},
		),
		ReconcileDuration: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "reconcile_duration_seconds", Help: "Reconciliation run duration in seconds", Buckets: []float64{.1, .5, 1, 5, 15, 30, 60}},
			[]string{"scope"},
		),
		ReconcileChunksUpserted: autoCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "reconcile_chunks_upserted_total", Help: "Total chunks upserted by reconciliation"},
		),
		ReconcileChunksDeleted: autoCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "reconcile_chunks_deleted_total", Help: "Total chunks deleted by reconciliation"},
		),
		ReconcileChunksMoved: autoCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "reconcile_chunks_moved_total", Help: "Total chunks whose row was updated in place because only their location moved"},
		),

		EmbeddingRequests: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "embedding_requests_total", Help: "Total embedding requests by provider and status"},
			[]string{"provider", "status"},
		),
		EmbeddingDuration: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "embedding_duration_seconds", Help: "Embedding batch duration in seconds", Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10}},
			[]string{"provider"},
		),
		EmbeddingErrors: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "embedding_errors_total", Help: "Total embedding errors by provider and error type"},
			[]string{"provider", "error_type"},
		),

		ChatRequests: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "chat_requests_total", Help: "Total chat completion requests by provider and status"},
			[]string{"provider", "status"},
		),
		ChatDuration: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "chat_duration_seconds", Help: "Chat completion duration in seconds", Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60}},
			[]string{"provider"},
		),
		ChatErrors: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "chat_errors_total", Help: "Total chat errors by provider and error type"},
			[]string{"provider", "error_type"},
		),

		RetrieveRequests: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "retrieve_requests_total", Help: "Total retrieval requests by route and status"},
			[]string{"route", "status"},
		),
		RetrieveDuration: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "retrieve_duration_seconds", Help: "Retrieval duration in seconds", Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5}},
			[]string{"route"},
		),
		RetrieveResults: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "retrieve_results_count", Help: "Number of chunks returned per retrieval", Buckets: []float64{0, 1, 5, 10, 25, 50, 100}},
			[]string{"route"},
		),

		RateLimitWaitDuration: autoHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "rate_limit_wait_duration_seconds", Help: "Time spent waiting for rate limiter admission", Buckets: []float64{0, .01, .05, .1, .5, 1, 5, 10, 30}},
			[]string{"provider"},
		),
		RateLimitRejections: autoCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejections_total", Help: "Total requests rejected after exhausting rate limiter retries"},
			[]string{"provider"},
		),

		SystemStartTime: autoGauge(
			prometheus.GaugeOpts{Namespace: namespace, Name: "system_start_time_seconds", Help: "Unix timestamp when mimir started"},
		),
		SystemHealth: autoGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "system_health_status", Help: "Component health status (1 = healthy, 0 = unhealthy)"},
			[]string{"component"},
		),
	}
}

// RecordHTTPRequest records metrics for a completed HTTP request.
func (m *MetricsCollector) RecordHTTPRequest(route, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// TrackHTTPInFlight adjusts the in-flight gauge for route by delta.
func (m *MetricsCollector) TrackHTTPInFlight(route string, delta float64) {
	m.HTTPRequestsInFlight.WithLabelValues(route).Add(delta)
}

// RecordIngestRun records one ingestion run's outcome and duration.
func (m *MetricsCollector) RecordIngestRun(trigger, status string, duration time.Duration) {
	m.IngestRunsTotal.WithLabelValues(trigger, status).Inc()
	m.IngestDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordIngestFilesFetched increments the fetched-files counter.
func (m *MetricsCollector) RecordIngestFilesFetched(count int) {
	m.IngestFilesFetched.Add(float64(count))
}

// RecordIngestError records an ingestion error at the given pipeline stage.
func (m *MetricsCollector) RecordIngestError(stage string) {
	m.IngestErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordReconcileRun records one reconciliation run's outcome and duration.
func (m *MetricsCollector) RecordReconcileRun(scope, status string, duration time.Duration) {
	m.ReconcileRunsTotal.WithLabelValues(scope, status).Inc()
	m.ReconcileDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// RecordReconcileOutcome tallies one reconciliation run's chunk-level outcome counts.
func (m *MetricsCollector) RecordReconcileOutcome(upserted, deleted, moved int) {
	m.ReconcileChunksUpserted.Add(float64(upserted))
	m.ReconcileChunksDeleted.Add(float64(deleted))
	m.ReconcileChunksMoved.Add(float64(moved))
}

// RecordEmbedding records metrics for an embedding batch request.
func (m *MetricsCollector) RecordEmbedding(provider, status string, duration time.Duration) {
	m.EmbeddingRequests.WithLabelValues(provider, status).Inc()
	m.EmbeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordEmbeddingError records an embedding error.
func (m *MetricsCollector) RecordEmbeddingError(provider, errorType string) {
	m.EmbeddingErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordChat records metrics for a chat completion request.
func (m *MetricsCollector) RecordChat(provider, status string, duration time.Duration) {
	m.ChatRequests.WithLabelValues(provider, status).Inc()
	m.ChatDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordChatError records a chat error.
func (m *MetricsCollector) RecordChatError(provider, errorType string) {
	m.ChatErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordRetrieve records metrics for a retrieval request.
func (m *MetricsCollector) RecordRetrieve(route, status string, duration time.Duration, resultCount int) {
	m.RetrieveRequests.WithLabelValues(route, status).Inc()
	m.RetrieveDuration.WithLabelValues(route).Observe(duration.Seconds())
	m.RetrieveResults.WithLabelValues(route).Observe(float64(resultCount))
}

// RecordRateLimitWait records how long a call waited for rate limiter admission.
func (m *MetricsCollector) RecordRateLimitWait(provider string, wait time.Duration) {
	m.RateLimitWaitDuration.WithLabelValues(provider).Observe(wait.Seconds())
}

// RecordRateLimitRejection records a request rejected after exhausting retries.
func (m *MetricsCollector) RecordRateLimitRejection(provider string) {
	m.RateLimitRejections.WithLabelValues(provider).Inc()
}

// SetSystemStartTime records mimir's process start time.
func (m *MetricsCollector) SetSystemStartTime(startTime time.Time) {
	m.SystemStartTime.Set(float64(startTime.Unix()))
}

// SetComponentHealth sets the health status of a named component.
func (m *MetricsCollector) SetComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.SystemHealth.WithLabelValues(component).Set(value)
}
