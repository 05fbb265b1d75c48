package api

import (
	"net/http"
)

// getCircuitBreakerStatusHandler returns the current state of the circuit breaker
func (s *Server) getCircuitBreakerStatusHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.gracefulDegradation.GetMetrics()})
}

// resetCircuitBreakerHandler closes the breaker so storefront traffic flows again
func (s *Server) resetCircuitBreakerHandler(w http.ResponseWriter, r *http.Request) {
	s.gracefulDegradation.Reset()

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message": "Circuit breaker reset successfully",
			"state":   s.gracefulDegradation.GetMetrics()["state"],
		},
	})
}
