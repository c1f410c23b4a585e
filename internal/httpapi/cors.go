package httpapi

import (
	"net/http"
	"strings"
)

// CORSConfig mirrors the teacher's internal/middleware.CORSConfig, trimmed
// to the allow-list fields mimir actually exposes via config.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig matches the teacher's DefaultCORSConfig: disabled
// unless an operator opts in, since a bare API has no cookie-based session
// to protect and most callers are server-to-server.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		Enabled:        false,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "x-api-key"},
		MaxAge:         600,
	}
}

// CORSMiddleware applies CORSConfig to every response, grounded on the
// teacher's internal/middleware.CORSMiddleware (preflight short-circuit,
// wildcard origin matching).
type CORSMiddleware struct {
	config CORSConfig
}

// NewCORSMiddleware builds a CORSMiddleware.
func NewCORSMiddleware(config CORSConfig) *CORSMiddleware {
	return &CORSMiddleware{config: config}
}

// Middleware wraps next with CORS header handling.
func (m *CORSMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if origin != "" && m.isOriginAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if m.config.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions {
			m.handlePreflight(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) handlePreflight(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(m.config.AllowedMethods, ", "))
	w.Header().Set("Access-Control-Allow-Headers", strings.Join(m.config.AllowedHeaders, ", "))
	w.WriteHeader(http.StatusNoContent)
}

func (m *CORSMiddleware) isOriginAllowed(origin string) bool {
	for _, allowed := range m.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(origin, allowed[1:]) {
			return true
		}
	}
	return false
}
