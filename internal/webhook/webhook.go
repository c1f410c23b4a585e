// Package webhook verifies GitHub webhook deliveries and triggers
// asynchronous ingestion, mirroring the teacher's
// internal/mcp/webhooks.WebhookHandler signature-verification idiom
// generalized to mimir's single content pipeline.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Trigger enqueues an ingestion run without blocking the webhook response.
// Implementations own the single-flight "ingestionBusy" guard described in
// spec.md §5/§6; TriggerAsync returns false when a run is already in
// flight or already queued, so the handler can still report success to
// GitHub (the event isn't lost, just coalesced).
type Trigger interface {
	TriggerAsync() (accepted bool)
}

// Handler serves POST /webhook/github.
type Handler struct {
	secret  string
	trigger Trigger
}

// NewHandler builds a webhook handler for the given shared secret. An
// empty secret means the route is unconfigured; ServeHTTP responds 501 in
// that case, matching spec.md §6's "absence -> 501" rule for
// MIMIR_SERVER_GITHUB_WEBHOOK_SECRET.
func NewHandler(secret string, trigger Trigger) *Handler {
	return &Handler{secret: secret, trigger: trigger}
}

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ServeHTTP implements the POST /webhook/github route: verifies
// X-Hub-Signature-256 over the raw body, answers ping events with pong,
// and otherwise enqueues ingestion asynchronously.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		writeJSON(w, http.StatusNotImplemented, response{Status: "error", Message: "github webhook not configured"})
		return
	}

	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{Status: "error", Message: "failed to read request body"})
		return
	}

	if !VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), h.secret) {
		writeJSON(w, http.StatusUnauthorized, response{Status: "error", Message: "invalid signature"})
		return
	}

	if r.Header.Get("X-GitHub-Event") == "ping" {
		writeJSON(w, http.StatusOK, response{Status: "ok", Message: "pong"})
		return
	}

	if h.trigger.TriggerAsync() {
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Message: "ingestion queued"})
		return
	}
	writeJSON(w, http.StatusAccepted, response{Status: "accepted", Message: "ingestion already in progress"})
}

// VerifySignature checks the X-Hub-Signature-256 header's HMAC-SHA256 over
// the raw request body, exactly as GitHub computes it: "sha256=" followed
// by the hex digest keyed with the shared secret.
func VerifySignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	expected := signature[len("sha256="):]

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	actual := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(actual))
}
