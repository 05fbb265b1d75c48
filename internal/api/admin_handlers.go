package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/internal/repository"
	"github.com/vaidashi/chickiemart-api/internal/service"
)

type contextKey string

const adminClaimsKey contextKey = "adminClaims"

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type updateStatusRequest struct {
	Status  string `json:"status"`
	Version int64  `json:"version"`
}

type orderListResponse struct {
	Orders []*models.Order `json:"orders"`
	Count  int             `json:"count"`
	Filter string          `json:"filter"`
}

type adminOrderView struct {
	*models.Order
	AvailableActions []models.OrderStatus `json:"available_actions"`
}

// requireAdmin rejects requests without a valid dashboard token
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")

		if !found || strings.TrimSpace(token) == "" {
			s.respondWithError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims, err := s.authService.ValidateToken(strings.TrimSpace(token))

		if err != nil {
			s.respondWithAppError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), adminClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) *service.AdminClaims {
	claims, _ := ctx.Value(adminClaimsKey).(*service.AdminClaims)
	return claims
}

// adminLoginHandler exchanges the dashboard password for a token
func (s *Server) adminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	token, expiresAt, err := s.authService.Login(req.Password)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    loginResponse{Token: token, ExpiresAt: expiresAt},
	})
}

// listOrdersHandler returns the ledger, optionally filtered by status
func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")

	if filter == "" {
		filter = models.StatusFilterAll
	}

	orders, err := s.orderService.ListOrders(r.Context(), filter)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    orderListResponse{Orders: orders, Count: len(orders), Filter: filter},
	})
}

// updateOrderStatusHandler moves an order to a new status
func (s *Server) updateOrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	id := mux.Vars(r)["id"]
	order, err := s.orderService.UpdateStatus(r.Context(), id, req.Status, req.Version)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	actor := ""
	if claims := claimsFrom(r.Context()); claims != nil {
		actor = claims.ID
	}
	s.logger.Info("Order status set by admin", "orderID", id, "status", order.Status, "token", actor)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    adminOrderView{Order: order, AvailableActions: order.Status.AvailableActions()},
	})
}

// statsHandler returns dashboard counters
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orderService.Stats(r.Context())

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: stats})
}

// listFailedMessagesHandler returns order events that exhausted their retries
func (s *Server) listFailedMessagesHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)

		if err != nil || parsed < 1 || parsed > 500 {
			s.respondWithError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	messages, err := s.failedMessages.GetFailedMessages(r.Context(), limit)

	if err != nil {
		s.logger.Error("Failed to list failed outbox messages", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to list failed messages")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"messages": messages,
			"count":    len(messages),
		},
	})
}

// retryFailedMessageHandler puts a failed event back in the delivery queue
func (s *Server) retryFailedMessageHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid message id")
		return
	}

	if err := s.failedMessages.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondWithError(w, http.StatusNotFound, "Failed message not found")
			return
		}

		s.logger.Error("Failed to requeue outbox message", "messageID", id, "error", err)
		s.respondWithError(w, http.StatusInternalServerError, "Failed to requeue message")
		return
	}

	s.logger.Info("Outbox message requeued", "messageID", id)

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data: map[string]interface{}{
			"message":    "Message scheduled for redelivery",
			"message_id": id,
		},
	})
}
