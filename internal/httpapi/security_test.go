package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityMiddlewareSetsHeaders(t *testing.T) {
	m := NewSecurityMiddleware(DefaultSecurityConfig())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	m.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestSecurityMiddlewareSkipsWhenDisabled(t *testing.T) {
	m := NewSecurityMiddleware(SecurityConfig{Enabled: false})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	m.Middleware(okHandler()).ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("X-Frame-Options"))
}
