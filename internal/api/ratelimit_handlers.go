package api

import (
	"net/http"
)

// getRateLimitsHandler returns the client and endpoint limiter settings
func (s *Server) getRateLimitsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"client_limits":   s.rateLimiter.GetMetrics(),
			"endpoint_limits": s.endpointRateLimiter.GetAllLimits(),
		},
	})
}
