package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/vaidashi/chickiemart-api/internal/models"
)

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

var quantityRangeMessage = fmt.Sprintf("quantity must not exceed %d", models.MaxLineQuantity)

func (s *Server) respondWithCart(w http.ResponseWriter, code int, cart *models.Cart) {
	s.respondWithJSON(w, code, ApiResponse{Success: true, Data: cart.View()})
}

// createCartHandler opens a new cart session
func (s *Server) createCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := s.cartService.CreateCart(r.Context())

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithCart(w, http.StatusCreated, cart)
}

// getCartHandler returns the cart with its total and item count
func (s *Server) getCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := s.cartService.GetCart(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithCart(w, http.StatusOK, cart)
}

// addCartItemHandler adds a catalog product, merging with an existing line
func (s *Server) addCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.ProductID == "" {
		s.respondWithError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	if req.Quantity > models.MaxLineQuantity {
		s.respondWithError(w, http.StatusBadRequest, quantityRangeMessage)
		return
	}

	cart, err := s.cartService.AddProduct(r.Context(), mux.Vars(r)["id"], req.ProductID, req.Quantity)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithCart(w, http.StatusOK, cart)
}

// updateCartItemHandler sets a line quantity; zero or less removes the line
func (s *Server) updateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Quantity > models.MaxLineQuantity {
		s.respondWithError(w, http.StatusBadRequest, quantityRangeMessage)
		return
	}

	vars := mux.Vars(r)
	cart, err := s.cartService.UpdateQuantity(r.Context(), vars["id"], vars["productID"], req.Quantity)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithCart(w, http.StatusOK, cart)
}

// removeCartItemHandler drops a line
func (s *Server) removeCartItemHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cart, err := s.cartService.RemoveItem(r.Context(), vars["id"], vars["productID"])

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithCart(w, http.StatusOK, cart)
}

// clearCartHandler empties the cart but keeps the session
func (s *Server) clearCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := s.cartService.ClearCart(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithCart(w, http.StatusOK, cart)
}

// endCartSessionHandler deletes the cart session
func (s *Server) endCartSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.cartService.EndSession(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"message": "Cart session ended"},
	})
}
