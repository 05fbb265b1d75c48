package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
)

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Health represents the health check response
type Health struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Storage   string            `json:"storage"`
	CartStore string            `json:"cart_store"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// healthCheckHandler reports liveness and the reachability of external stores
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	health := Health{
		Status:    "ok",
		Version:   apiVersion,
		Timestamp: time.Now().Format(time.RFC3339),
		Storage:   s.config.Storage,
		CartStore: s.config.CartStore,
	}

	code := http.StatusOK

	if len(s.healthChecks) > 0 {
		health.Checks = make(map[string]string, len(s.healthChecks))

		for name, check := range s.healthChecks {
			if err := check(ctx); err != nil {
				s.logger.Warn("Health check failed", "check", name, "error", err)
				health.Checks[name] = "down"
				health.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			health.Checks[name] = "up"
		}
	}

	s.respondWithJSON(w, code, ApiResponse{
		Success: code == http.StatusOK,
		Data:    health,
	})
}

// listProductsHandler returns the catalog
func (s *Server) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: s.catalog.List()})
}

// getProductHandler returns one catalog product
func (s *Server) getProductHandler(w http.ResponseWriter, r *http.Request) {
	product, ok := s.catalog.Get(mux.Vars(r)["id"])

	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: product})
}

// decodeJSON reads a JSON body into dst
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	return true
}

// respondWithAppError maps service errors onto the response envelope
func (s *Server) respondWithAppError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError

	if errors.As(err, &appErr) {
		status := apperrors.HTTPStatus(appErr)

		if status >= http.StatusInternalServerError {
			s.logger.Warn("Request failed", "status", status, "error", appErr.Err, "retryable", appErr.Retryable, "context", appErr.Context)
		} else {
			s.logger.Debug("Request rejected", "status", status, "message", appErr.Message, "context", appErr.Context)
		}

		s.respondWithError(w, status, appErr.Error())
		return
	}

	s.logger.Error("Unhandled error", "error", err)
	s.respondWithError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
