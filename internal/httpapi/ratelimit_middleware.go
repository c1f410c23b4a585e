package httpapi

import (
	"net"
	"net/http"
	"strconv"
)

// RateLimitMiddleware enforces RateLimiter budgets per request, grounded on
// the teacher's internal/middleware.RateLimitMiddleware (client-IP
// extraction, X-RateLimit-* response headers, 429 on exceeded) trimmed to
// mimir's two route classes.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	cfg     RateLimitConfig
}

// NewRateLimitMiddleware builds a RateLimitMiddleware.
func NewRateLimitMiddleware(limiter *RateLimiter, cfg RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, cfg: cfg}
}

// Middleware wraps next, applying the Webhook budget to the GitHub webhook
// route and the Default budget to everything else.
func (m *RateLimitMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := m.cfg.Default
		if r.URL.Path == "/webhook/github" {
			limit = m.cfg.Webhook
		}

		result, err := m.limiter.Allow(r.Context(), IPLimiter, clientIP(r), limit)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		if !result.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the caller's address, preferring X-Forwarded-For (set
// by a front proxy) over RemoteAddr, mirroring the teacher's getClientIP
// without its trusted-proxy allow-list (mimir has no such config surface).
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
