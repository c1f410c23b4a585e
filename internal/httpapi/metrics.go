package httpapi

import (
	"net/http"
	"time"

	"github.com/mimir-run/mimir/internal/observability"
)

// statusRecorder captures the status code a handler wrote, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// MetricsMiddleware records each request's route, status, and duration via
// metrics.RecordHTTPRequest, grounded on the teacher's per-request metrics
// recording in internal/observability/metrics.go.
func MetricsMiddleware(metrics *observability.MetricsCollector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			metrics.RecordHTTPRequest(r.URL.Path, http.StatusText(rec.status), time.Since(start))
		})
	}
}
