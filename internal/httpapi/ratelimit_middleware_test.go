package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitMiddlewareAllowsThenBlocks(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimitConfig{Enabled: true})
	require.NoError(t, err)

	cfg := RateLimitConfig{
		Enabled: true,
		Default: LimitConfig{Requests: 1, Window: time.Minute},
		Webhook: LimitConfig{Requests: 1, Window: time.Minute},
	}
	m := NewRateLimitMiddleware(limiter, cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec1 := httptest.NewRecorder()
	m.Middleware(okHandler()).ServeHTTP(rec1, req)
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	m.Middleware(okHandler()).ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.NotEmpty(t, rec2.Header().Get("Retry-After"))
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	req.RemoteAddr = "10.0.0.1:1234"

	assert.Equal(t, "203.0.113.5", clientIP(req))
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	assert.Equal(t, "10.0.0.1", clientIP(req))
}
