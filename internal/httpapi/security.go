package httpapi

import (
	"fmt"
	"net/http"
)

// SecurityConfig mirrors the teacher's internal/middleware.SecurityConfig,
// trimmed to the headers mimir's JSON-only API surface needs.
type SecurityConfig struct {
	Enabled               bool
	ContentSecurityPolicy string
	HSTSMaxAge            int
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
}

// DefaultSecurityConfig matches the teacher's restrictive defaults.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		Enabled:               true,
		ContentSecurityPolicy: "default-src 'none'",
		HSTSMaxAge:            31536000,
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
	}
}

// SecurityMiddleware sets standard security-hardening response headers,
// grounded on the teacher's internal/middleware.SecurityMiddleware.
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware builds a SecurityMiddleware.
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{config: config}
}

// Middleware wraps next, setting security headers on every response.
func (m *SecurityMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.Enabled {
			h := w.Header()
			h.Set("Content-Security-Policy", m.config.ContentSecurityPolicy)
			h.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", m.config.HSTSMaxAge))
			h.Set("X-Frame-Options", m.config.XFrameOptions)
			h.Set("X-Content-Type-Options", m.config.XContentTypeOptions)
			h.Set("Referrer-Policy", m.config.ReferrerPolicy)
		}
		next.ServeHTTP(w, r)
	})
}
