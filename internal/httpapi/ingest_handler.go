package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/mimir-run/mimir/internal/ingest"
	"github.com/mimir-run/mimir/internal/reconcile"
)

// ingestRunner is satisfied by *ingest.Coordinator.
type ingestRunner interface {
	RunNow(ctx context.Context) (ingest.Result, error)
}

type ingestResponse struct {
	Status     string          `json:"status"`
	Trigger    string          `json:"trigger"`
	DurationMs int64           `json:"durationMs"`
	Stats      reconcile.Stats `json:"stats"`
}

// IngestHandler serves POST /ingest: runs one ingestion pass synchronously
// and reports its outcome, returning 409 if a run is already in flight per
// the single-flight guard shared with the webhook trigger path.
func IngestHandler(runner ingestRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := runner.RunNow(r.Context())
		if errors.Is(err, ingest.ErrBusy) {
			writeError(w, http.StatusConflict, "an ingestion run is already in progress")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, ingestResponse{
			Status:     "ok",
			Trigger:    "manual",
			DurationMs: result.DurationMs,
			Stats:      result.Stats,
		})
	}
}
