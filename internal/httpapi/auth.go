package httpapi

import (
	"net/http"
	"strings"
)

// publicPaths lists routes the auth middleware never challenges, mirroring
// the teacher's AuthMiddleware.shouldSkipAuth allowlist (health checks and
// the webhook route, which authenticates itself via HMAC signature
// instead).
var publicPaths = map[string]bool{
	"/health":         true,
	"/webhook/github": true,
	"/mcp/ask":        true,
}

// AuthMiddleware checks a single shared server API key, grounded on the
// teacher's internal/middleware.AuthMiddleware but simplified: spec.md §6
// authenticates the whole server with one static key rather than the
// teacher's per-user JWT claims, so there is no token issuance, no roles,
// and no request-context claims to thread through.
type AuthMiddleware struct {
	apiKey string
}

// NewAuthMiddleware builds an AuthMiddleware checking against apiKey.
func NewAuthMiddleware(apiKey string) *AuthMiddleware {
	return &AuthMiddleware{apiKey: apiKey}
}

// Middleware wraps next, rejecting requests to protected routes that don't
// present apiKey via "x-api-key" or "Authorization: Bearer <key>".
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		presented := extractCredential(r)
		if presented == "" || presented != m.apiKey {
			writeError(w, http.StatusUnauthorized, "missing or invalid credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractCredential(r *http.Request) string {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}
