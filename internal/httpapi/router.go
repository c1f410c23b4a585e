// Package httpapi assembles mimir's HTTP surface: the middleware chain
// (auth, CORS, security headers, rate limit) and the route handlers for
// health, ingestion, chat, and the GitHub webhook, grounded on the
// teacher's cmd/conexus/main.go wiring.
package httpapi

import (
	"net/http"

	"github.com/mimir-run/mimir/internal/mcp"
	"github.com/mimir-run/mimir/internal/observability"
	"github.com/mimir-run/mimir/internal/webhook"
)

// Deps bundles everything NewRouter needs to build mimir's HTTP surface.
type Deps struct {
	APIKey          string
	WebhookSecret   string
	Coordinator     ingestRunner
	CoordinatorStat ingestionStatus
	Trigger         webhook.Trigger
	Chat            ChatDeps
	MCP             mcp.Deps
	Metrics         *observability.MetricsCollector

	CORS      CORSConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
}

// NewRouter builds the complete *http.ServeMux with every route mounted
// and the full middleware chain applied, in the binding order "auth, CORS,
// security headers, rate limit" (outermost to innermost at request time).
func NewRouter(deps Deps) (http.Handler, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", HealthHandler(deps.CoordinatorStat))
	mux.HandleFunc("POST /ingest", IngestHandler(deps.Coordinator))
	mux.Handle("POST /webhook/github", webhook.NewHandler(deps.WebhookSecret, deps.Trigger))
	mux.HandleFunc("POST /v1/chat/completions", ChatHandler(deps.Chat))
	mux.HandleFunc("POST /mcp/ask", mcp.AskHandler(deps.MCP))

	limiter, err := NewRateLimiter(deps.RateLimit)
	if err != nil {
		return nil, err
	}

	var handler http.Handler = mux
	handler = NewRateLimitMiddleware(limiter, deps.RateLimit).Middleware(handler)
	handler = NewSecurityMiddleware(deps.Security).Middleware(handler)
	handler = NewCORSMiddleware(deps.CORS).Middleware(handler)
	handler = NewAuthMiddleware(deps.APIKey).Middleware(handler)
	handler = MetricsMiddleware(deps.Metrics)(handler)

	return handler, nil
}
