package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/vaidashi/chickiemart-api/pkg/circuitbreaker"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// GracefulDegradation sheds non-essential traffic while the service keeps failing
type GracefulDegradation struct {
	breaker           *circuitbreaker.CircuitBreaker
	essentialPrefixes []string
	logger            logger.Logger
}

// DefaultBreakerConfig opens after 10 server errors and lets trial calls through again after 30s
func DefaultBreakerConfig() circuitbreaker.CircuitBreakerConfig {
	return circuitbreaker.CircuitBreakerConfig{
		FailureThreshold: 10,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 5,
	}
}

// NewGracefulDegradation creates a new graceful degradation middleware.
// Requests whose path starts with one of essentialPrefixes bypass the breaker.
func NewGracefulDegradation(cfg circuitbreaker.CircuitBreakerConfig, essentialPrefixes []string, logger logger.Logger) *GracefulDegradation {
	return &GracefulDegradation{
		breaker:           circuitbreaker.NewCircuitBreaker(cfg),
		essentialPrefixes: essentialPrefixes,
		logger:            logger,
	}
}

// Middleware returns a middleware function
func (gd *GracefulDegradation) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gd.isEssential(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		if !gd.breaker.Allow() {
			gd.logger.Warn("Circuit is open, request rejected",
				"path", r.URL.Path,
				"method", r.Method,
				"state", gd.breaker.GetState().String())

			writeError(w, apperrors.NewServiceUnavailableError("Service is temporarily unavailable. Please try again later."), 30)
			return
		}

		wrapped := NewStatusRecorder(w)
		next.ServeHTTP(wrapped, r)

		if wrapped.Status >= 500 {
			gd.breaker.Failure()
		} else if wrapped.Status < 400 {
			gd.breaker.Success()
		}
	})
}

func (gd *GracefulDegradation) isEssential(path string) bool {
	for _, prefix := range gd.essentialPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

// GetMetrics returns metrics about the circuit breaker
func (gd *GracefulDegradation) GetMetrics() map[string]interface{} {
	return gd.breaker.GetMetrics()
}

// Reset closes the circuit breaker
func (gd *GracefulDegradation) Reset() {
	gd.breaker.Reset()
	gd.logger.Info("Circuit breaker reset")
}
