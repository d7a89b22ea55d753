package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKey_NoKeyConfiguredPassesThrough(t *testing.T) {
	h := NewAPIKeyAuth("").Middleware(okHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/upload", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIKey_MissingKeyRejected(t *testing.T) {
	h := NewAPIKeyAuth("secret").Middleware(okHandler())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/api/upload", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "api key")
}

func TestAPIKey_HeaderAccepted(t *testing.T) {
	h := NewAPIKeyAuth("secret").Middleware(okHandler())
	req := httptest.NewRequest("POST", "/api/upload", nil)
	req.Header.Set("X-Api-Key", "secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIKey_BearerAccepted(t *testing.T) {
	h := NewAPIKeyAuth("secret").Middleware(okHandler())
	req := httptest.NewRequest("POST", "/api/upload", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestAPIKey_WrongKeyRejected(t *testing.T) {
	h := NewAPIKeyAuth("secret").Middleware(okHandler())
	req := httptest.NewRequest("POST", "/api/upload", nil)
	req.Header.Set("X-Api-Key", "nope")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
