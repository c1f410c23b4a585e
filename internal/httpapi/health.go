package httpapi

import "net/http"

// ingestionStatus reports whether an ingestion run is currently in flight,
// satisfied by *ingest.Coordinator.
type ingestionStatus interface {
	IngestionBusy() bool
}

type healthResponse struct {
	Status        string `json:"status"`
	IngestionBusy bool   `json:"ingestionBusy"`
}

// HealthHandler serves GET /health.
func HealthHandler(status ingestionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status:        "ok",
			IngestionBusy: status.IngestionBusy(),
		})
	}
}
