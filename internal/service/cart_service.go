package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/internal/repository"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// CartService manages cart sessions
type CartService struct {
	store   CartStore
	catalog ProductCatalog
	logger  logger.Logger
}

// NewCartService creates a new CartService
func NewCartService(store CartStore, catalog ProductCatalog, logger logger.Logger) *CartService {
	return &CartService{
		store:   store,
		catalog: catalog,
		logger:  logger,
	}
}

func (s *CartService) mapError(err error, cartID string) error {
	var appErr *apperrors.AppError

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFoundError("Cart not found").WithContext("cart_id", cartID)
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("Cart store timed out", "error", err, "cartID", cartID)
		return apperrors.FromContextError(err, "The cart took too long to respond. Please try again.").WithContext("cart_id", cartID)
	default:
		s.logger.Error("Cart store failure", "error", err, "cartID", cartID)
		return apperrors.NewInternalError("Failed to update cart. Please try again.")
	}
}

var quantityTooLargeMessage = fmt.Sprintf("Quantity cannot exceed %d", models.MaxLineQuantity)

func checkQuantity(quantity int) error {
	if quantity > models.MaxLineQuantity {
		return apperrors.NewInvalidInputError(quantityTooLargeMessage).WithContext("quantity", quantity)
	}
	return nil
}

// CreateCart starts a new empty cart session
func (s *CartService) CreateCart(ctx context.Context) (*models.Cart, error) {
	cart := models.NewCart(uuid.NewString())

	if err := s.store.Create(ctx, cart); err != nil {
		return nil, s.mapError(err, cart.ID)
	}

	s.logger.Debug("Cart created", "cartID", cart.ID)
	return cart, nil
}

// GetCart returns the cart session
func (s *CartService) GetCart(ctx context.Context, cartID string) (*models.Cart, error) {
	cart, err := s.store.Get(ctx, cartID)

	if err != nil {
		return nil, s.mapError(err, cartID)
	}

	return cart, nil
}

// AddProduct adds quantity units of a catalog product, merging with an existing line
func (s *CartService) AddProduct(ctx context.Context, cartID, productID string, quantity int) (*models.Cart, error) {
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	product, ok := s.catalog.Get(productID)

	if !ok {
		return nil, apperrors.NewNotFoundError("Product not found").WithContext("product_id", productID)
	}

	cart, err := s.store.Update(ctx, cartID, func(c *models.Cart) error {
		c.AddItem(product.LineItem(quantity))
		return nil
	})

	if err != nil {
		return nil, s.mapError(err, cartID)
	}

	return cart, nil
}

// RemoveItem drops a line from the cart; absent lines are ignored
func (s *CartService) RemoveItem(ctx context.Context, cartID, productID string) (*models.Cart, error) {
	cart, err := s.store.Update(ctx, cartID, func(c *models.Cart) error {
		c.RemoveItem(productID)
		return nil
	})

	if err != nil {
		return nil, s.mapError(err, cartID)
	}

	return cart, nil
}

// UpdateQuantity sets a line's quantity; zero or less removes the line
func (s *CartService) UpdateQuantity(ctx context.Context, cartID, productID string, quantity int) (*models.Cart, error) {
	if err := checkQuantity(quantity); err != nil {
		return nil, err
	}

	cart, err := s.store.Update(ctx, cartID, func(c *models.Cart) error {
		c.UpdateQuantity(productID, quantity)
		return nil
	})

	if err != nil {
		return nil, s.mapError(err, cartID)
	}

	return cart, nil
}

// EndSession deletes the cart session; later lookups report the cart as not found
func (s *CartService) EndSession(ctx context.Context, cartID string) error {
	if err := s.store.Delete(ctx, cartID); err != nil {
		return s.mapError(err, cartID)
	}

	s.logger.Debug("Cart session ended", "cartID", cartID)
	return nil
}

// ClearCart empties the cart but keeps the session
func (s *CartService) ClearCart(ctx context.Context, cartID string) (*models.Cart, error) {
	cart, err := s.store.Update(ctx, cartID, func(c *models.Cart) error {
		c.Clear()
		return nil
	})

	if err != nil {
		return nil, s.mapError(err, cartID)
	}

	return cart, nil
}
