package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/internal/repository"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
	"github.com/vaidashi/chickiemart-api/pkg/retry"
)

const submitFailedMessage = "Failed to submit order. Please try again."

// form messages per customer field, checked in struct field order
var customerFieldMessages = map[string]string{
	"Name":    "Please enter your name",
	"Phone":   "Please enter your phone number",
	"Address": "Please enter your delivery address",
}

// OrderService handles checkout and the order lifecycle
type OrderService struct {
	orders   OrderStore
	carts    CartStore
	validate *validator.Validate
	retry    *retry.RetryConfig
	logger   logger.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(orders OrderStore, carts CartStore, logger logger.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		carts:    carts,
		validate: validator.New(),
		retry: &retry.RetryConfig{
			MaxAttempts:     3,
			BackoffStrategy: &retry.ConstantBackoff{Interval: 20 * time.Millisecond},
			Logger:          logger,
			RetryableErrors: []error{repository.ErrVersionConflict},
		},
		logger: logger,
	}
}

// validateCustomer trims the customer fields in place and reports the first empty one
func (s *OrderService) validateCustomer(customer *models.Customer) error {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Phone = strings.TrimSpace(customer.Phone)
	customer.Address = strings.TrimSpace(customer.Address)

	err := s.validate.Struct(customer)

	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors

	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field := fieldErrs[0].StructField()
		return apperrors.NewInvalidInputError(customerFieldMessages[field]).WithContext("field", strings.ToLower(field))
	}

	return apperrors.NewInvalidInputError(err.Error())
}

var errEmptyCart = errors.New("cart is empty")

// takeCartItems snapshots and clears the cart in one store update, so items
// added concurrently are either ordered or left in the cart and a cart is
// never checked out twice.
func (s *OrderService) takeCartItems(ctx context.Context, cartID string) ([]models.LineItem, error) {
	var items []models.LineItem

	_, err := s.carts.Update(ctx, cartID, func(c *models.Cart) error {
		if c.IsEmpty() {
			return errEmptyCart
		}

		items = c.Snapshot()
		c.Clear()
		return nil
	})

	switch {
	case err == nil:
		return items, nil
	case errors.Is(err, errEmptyCart):
		return nil, apperrors.NewInvalidInputError("Your cart is empty")
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFoundError("Cart not found").WithContext("cart_id", cartID)
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("Cart store timed out during checkout", "error", err, "cartID", cartID)
		return nil, apperrors.FromContextError(err, submitFailedMessage).WithContext("cart_id", cartID)
	default:
		s.logger.Error("Failed to load cart for checkout", "error", err, "cartID", cartID)
		return nil, apperrors.NewInternalError(submitFailedMessage)
	}
}

// restoreCartItems puts taken items back ahead of anything added since
func (s *OrderService) restoreCartItems(ctx context.Context, cartID string, items []models.LineItem) {
	_, err := s.carts.Update(context.WithoutCancel(ctx), cartID, func(c *models.Cart) error {
		added := c.Snapshot()
		c.Items = append([]models.LineItem{}, items...)

		for _, item := range added {
			c.AddItem(item)
		}
		return nil
	})

	if err != nil {
		s.logger.Error("Failed to restore cart after checkout failure", "error", err, "cartID", cartID, "items", len(items))
	}
}

// SubmitOrder turns the cart into a pending order, records it with an
// order_created event and clears the cart. If the order cannot be recorded
// the cart items are restored.
func (s *OrderService) SubmitOrder(ctx context.Context, cartID string, customer models.Customer, paymentProof string) (*models.Order, error) {
	if err := s.validateCustomer(&customer); err != nil {
		return nil, err
	}

	items, err := s.takeCartItems(ctx, cartID)

	if err != nil {
		return nil, err
	}

	order := models.NewOrder(customer, items, strings.TrimSpace(paymentProof))

	event, err := models.NewOrderCreatedEvent(order)

	if err != nil {
		s.logger.Error("Failed to create outbox message", "error", err, "orderID", order.ID)
		s.restoreCartItems(ctx, cartID, items)
		return nil, apperrors.NewInternalError(submitFailedMessage)
	}

	if err := s.orders.Create(ctx, order, event); err != nil {
		s.logger.Error("Failed to record order", "error", err, "orderID", order.ID)
		s.restoreCartItems(ctx, cartID, items)
		return nil, apperrors.NewInternalError(submitFailedMessage)
	}

	s.logger.Info("Order submitted",
		"orderID", order.ID,
		"total", order.Total,
		"items", len(order.Items),
		"messageID", event.ID)

	return order, nil
}

// ListOrders returns orders oldest first; filter is "all", empty or a status
func (s *OrderService) ListOrders(ctx context.Context, filter string) ([]*models.Order, error) {
	filter = strings.TrimSpace(filter)

	if filter == models.StatusFilterAll {
		filter = ""
	}

	if filter != "" {
		if _, err := models.ParseOrderStatus(filter); err != nil {
			return nil, apperrors.NewInvalidInputError("Invalid status filter").WithContext("status", filter)
		}
	}

	orders, err := s.orders.List(ctx, filter)

	if err != nil {
		s.logger.Error("Failed to list orders", "error", err, "filter", filter)
		return nil, apperrors.NewInternalError("Failed to load orders")
	}

	return orders, nil
}

// FindOrder looks up a single order for the confirmation view
func (s *OrderService) FindOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Order not found").WithContext("order_id", id)
		}
		s.logger.Error("Failed to get order", "error", err, "orderID", id)
		return nil, apperrors.NewInternalError("Failed to load order")
	}

	return order, nil
}

// UpdateStatus moves an order to status. With expectedVersion > 0 the write
// only succeeds if the stored order still has that version; with 0 the
// current version is used and lost races are retried.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string, expectedVersion int64) (*models.Order, error) {
	newStatus, err := models.ParseOrderStatus(strings.TrimSpace(status))

	if err != nil {
		return nil, apperrors.NewInvalidInputError("Invalid status").WithContext("status", status)
	}

	var result *models.Order

	attempt := func() error {
		order, err := s.orders.GetByID(ctx, id)

		if err != nil {
			return err
		}

		if expectedVersion > 0 && order.Version != expectedVersion {
			return apperrors.NewConflictError("Order was changed by someone else, reload and try again").
				WithContext("current_version", order.Version)
		}

		if order.Status == newStatus {
			result = order
			return nil
		}

		oldStatus := order.Status
		order.Status = newStatus

		event, err := models.NewOrderStatusChangedEvent(order, oldStatus)

		if err != nil {
			return err
		}

		if err := s.orders.UpdateStatus(ctx, order, order.Version, event); err != nil {
			if expectedVersion > 0 && errors.Is(err, repository.ErrVersionConflict) {
				return apperrors.NewConflictError("Order was changed by someone else, reload and try again")
			}
			return err
		}

		s.logger.Info("Order status updated",
			"orderID", order.ID,
			"oldStatus", oldStatus,
			"newStatus", newStatus,
			"version", order.Version)

		result = order
		return nil
	}

	if err := retry.Retry(ctx, attempt, s.retry); err != nil {
		var appErr *apperrors.AppError

		switch {
		case errors.As(err, &appErr):
			return nil, appErr
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperrors.NewNotFoundError("Order not found").WithContext("order_id", id)
		case errors.Is(err, repository.ErrVersionConflict):
			return nil, apperrors.NewConflictError("Order was changed by someone else, reload and try again")
		default:
			s.logger.Error("Failed to update order status", "error", err, "orderID", id)
			return nil, apperrors.NewInternalError("Failed to update order status")
		}
	}

	return result, nil
}

// Stats summarises the ledger for the dashboard
func (s *OrderService) Stats(ctx context.Context) (*models.OrderStats, error) {
	stats, err := s.orders.Stats(ctx)

	if err != nil {
		s.logger.Error("Failed to compute order stats", "error", err)
		return nil, apperrors.NewInternalError("Failed to load statistics")
	}

	return stats, nil
}
