package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/chickiemart-api/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "192.0.2.7", ClientIP(r, false))
	assert.Equal(t, "203.0.113.9", ClientIP(r, true))

	r.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.7", ClientIP(r, true))
}

func TestRateLimiterMiddleware(t *testing.T) {
	m := NewRateLimiterMiddleware(&RateLimiterConfig{IPMaxTokens: 2, IPRefillRate: 0.001, IdleTTL: time.Minute}, logger.NewNop())
	defer m.Stop()

	h := m.Middleware(okHandler)

	do := func(addr string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do("192.0.2.1:1").Code)
	assert.Equal(t, http.StatusOK, do("192.0.2.1:2").Code)

	w := do("192.0.2.1:3")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Too many requests. Please try again later.", body.Error)

	assert.Equal(t, http.StatusOK, do("192.0.2.2:1").Code)
	assert.EqualValues(t, 2, m.GetMetrics()["tracked_ips"])
}

func TestEndpointRateLimiterOnlyLimitsConfiguredRoutes(t *testing.T) {
	m := NewEndpointRateLimiterMiddleware(false, logger.NewNop())
	defer m.Stop()
	m.SetLimit(http.MethodPost, "/api/v1/carts/{id}/checkout", 1, 0.001)

	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.Handle("/api/v1/carts/{id}/checkout", okHandler).Methods(http.MethodPost)
	router.Handle("/api/v1/carts/{id}", okHandler).Methods(http.MethodGet)

	do := func(method, path string) int {
		r := httptest.NewRequest(method, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/api/v1/carts/a/checkout"))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, "/api/v1/carts/b/checkout"), "limit is per route, not per path")

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, do(http.MethodGet, "/api/v1/carts/a"))
	}

	limits := m.GetAllLimits()
	require.Contains(t, limits, "POST /api/v1/carts/{id}/checkout")
	assert.Equal(t, 1.0, limits["POST /api/v1/carts/{id}/checkout"]["max_tokens"])
}

func TestGracefulDegradationOpensOnServerErrors(t *testing.T) {
	cfg := circuitbreaker.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour, HalfOpenMaxCalls: 1}
	gd := NewGracefulDegradation(cfg, []string{"/api/v1/health", "/api/v1/admin"}, logger.NewNop())

	failing := gd.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	do := func(path string) int {
		w := httptest.NewRecorder()
		failing.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusInternalServerError, do("/api/v1/products"))
	assert.Equal(t, http.StatusInternalServerError, do("/api/v1/products"))
	assert.Equal(t, http.StatusServiceUnavailable, do("/api/v1/products"))
	assert.Equal(t, "open", gd.GetMetrics()["state"])

	// essential routes bypass the open breaker
	assert.Equal(t, http.StatusInternalServerError, do("/api/v1/health"))

	gd.Reset()
	assert.Equal(t, "closed", gd.GetMetrics()["state"])
	assert.Equal(t, http.StatusInternalServerError, do("/api/v1/products"))
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, apperrors.NewServiceUnavailableError("down for a bit"), 30)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, errorBody{Success: false, Error: "down for a bit"}, body)

	// non-retryable errors never advertise a retry window
	w = httptest.NewRecorder()
	writeError(w, apperrors.NewInvalidInputError("bad"), 30)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get("Retry-After"))
}
