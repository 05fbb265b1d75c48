package api

import (
	"mime"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/vaidashi/chickiemart-api/internal/models"
)

const maxCheckoutUpload = 5 << 20

type checkoutRequest struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	PaymentProof string `json:"payment_proof"`
}

type checkoutResponse struct {
	OrderID         string        `json:"order_id"`
	Order           *models.Order `json:"order"`
	ConfirmationURL string        `json:"confirmation_url"`
}

// readCheckoutForm accepts either JSON or a multipart form. For multipart uploads
// only the proof's file name is kept.
func (s *Server) readCheckoutForm(w http.ResponseWriter, r *http.Request) (checkoutRequest, bool) {
	var req checkoutRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "multipart/form-data" && mediaType != "application/x-www-form-urlencoded" {
		return req, s.decodeJSON(w, r, &req)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCheckoutUpload)

	if err := r.ParseMultipartForm(maxCheckoutUpload); err != nil && err != http.ErrNotMultipart {
		s.respondWithError(w, http.StatusBadRequest, "Invalid checkout form")
		return req, false
	}

	req.Name = r.FormValue("name")
	req.Phone = r.FormValue("phone")
	req.Address = r.FormValue("address")
	req.PaymentProof = r.FormValue("payment_proof")

	if file, header, err := r.FormFile("payment_proof"); err == nil {
		file.Close()
		req.PaymentProof = filepath.Base(header.Filename)
	}

	return req, true
}

// confirmationURL is the link the storefront redirects to after checkout
func (s *Server) confirmationURL(orderID string) string {
	return s.config.PublicBaseURL + "/confirmation?orderId=" + url.QueryEscape(orderID)
}

// checkoutHandler submits the cart as a new order
func (s *Server) checkoutHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readCheckoutForm(w, r)

	if !ok {
		return
	}

	customer := models.Customer{Name: req.Name, Phone: req.Phone, Address: req.Address}
	order, err := s.orderService.SubmitOrder(r.Context(), mux.Vars(r)["id"], customer, req.PaymentProof)

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data: checkoutResponse{
			OrderID:         order.ID,
			Order:           order,
			ConfirmationURL: s.confirmationURL(order.ID),
		},
	})
}

// getOrderHandler is the confirmation lookup
func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderService.FindOrder(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithAppError(w, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}
