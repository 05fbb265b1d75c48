package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
	"github.com/vaidashi/chickiemart-api/pkg/ratelimit"
)

// EndpointRateLimiterMiddleware applies stricter per-client limits to selected routes.
// Endpoints are keyed by method and mux path template, e.g. "POST /api/v1/admin/login".
type EndpointRateLimiterMiddleware struct {
	limiters          map[string]*ratelimit.IPRateLimiter
	mu                sync.RWMutex
	trustForwardedFor bool
	logger            logger.Logger
}

// NewEndpointRateLimiterMiddleware creates a new EndpointRateLimiterMiddleware
func NewEndpointRateLimiterMiddleware(trustForwardedFor bool, logger logger.Logger) *EndpointRateLimiterMiddleware {
	return &EndpointRateLimiterMiddleware{
		limiters:          make(map[string]*ratelimit.IPRateLimiter),
		trustForwardedFor: trustForwardedFor,
		logger:            logger,
	}
}

// SetLimit sets the rate limit for a specific endpoint
func (m *EndpointRateLimiterMiddleware) SetLimit(method, pathTemplate string, maxTokens, refillRate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := EndpointKey(method, pathTemplate)

	if old, ok := m.limiters[key]; ok {
		old.Stop()
	}

	m.limiters[key] = ratelimit.NewIPRateLimiter(maxTokens, refillRate, 10*time.Minute)
}

// EndpointKey builds the lookup key for a route
func EndpointKey(method, pathTemplate string) string {
	return method + " " + pathTemplate
}

func (m *EndpointRateLimiterMiddleware) getLimiter(r *http.Request) (string, *ratelimit.IPRateLimiter) {
	route := mux.CurrentRoute(r)

	if route == nil {
		return "", nil
	}

	template, err := route.GetPathTemplate()

	if err != nil {
		return "", nil
	}

	key := EndpointKey(r.Method, template)

	m.mu.RLock()
	defer m.mu.RUnlock()

	return key, m.limiters[key]
}

// Middleware returns a middleware function for per-endpoint rate limiting.
// It must be installed with Router.Use so the matched route is known.
func (m *EndpointRateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint, limiter := m.getLimiter(r)

		if limiter != nil {
			ip := ClientIP(r, m.trustForwardedFor)

			if !limiter.Allow(ip) {
				m.logger.Warn("Endpoint rate limit exceeded", "endpoint", endpoint, "ip", ip)
				writeError(w, apperrors.NewRateLimitedError("Too many attempts. Please try again later.").WithContext("endpoint", endpoint), 60)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// GetAllLimits returns all configured endpoint limits
func (m *EndpointRateLimiterMiddleware) GetAllLimits() map[string]map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]map[string]interface{}, len(m.limiters))

	for endpoint, limiter := range m.limiters {
		result[endpoint] = limiter.GetMetrics()
	}

	return result
}

// Stop stops every endpoint limiter
func (m *EndpointRateLimiterMiddleware) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, limiter := range m.limiters {
		limiter.Stop()
	}
}
