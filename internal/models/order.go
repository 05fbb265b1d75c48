package models

import (
	"fmt"
	"time"
)

// NoPaymentProof is recorded when the customer did not upload a proof of payment
const NoPaymentProof = "No proof uploaded"

// OrderStatus represents the fulfillment stage of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusDelivered OrderStatus = "delivered"
)

// StatusFilterAll selects every order regardless of status
const StatusFilterAll = "all"

// AllStatuses lists the known statuses in lifecycle order
var AllStatuses = []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusDelivered}

// ParseOrderStatus validates a raw status string
func ParseOrderStatus(s string) (OrderStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// AvailableActions returns the statuses the dashboard offers from the current one.
// The store itself accepts any transition between known statuses.
func (s OrderStatus) AvailableActions() []OrderStatus {
	switch s {
	case OrderStatusPending:
		return []OrderStatus{OrderStatusConfirmed, OrderStatusDelivered}
	case OrderStatusConfirmed:
		return []OrderStatus{OrderStatusDelivered}
	default:
		return []OrderStatus{}
	}
}

// Customer holds the delivery details captured at checkout
type Customer struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
}

// Order represents a submitted order in the ledger
type Order struct {
	ID           string      `json:"id"`
	Customer     Customer    `json:"customer"`
	Items        []LineItem  `json:"items"`
	Total        int64       `json:"total"`
	PaymentProof string      `json:"payment_proof"`
	Status       OrderStatus `json:"status"`
	Version      int64       `json:"version"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewOrder creates a pending order from a snapshot of cart items.
// The total is fixed here and never recomputed.
func NewOrder(customer Customer, items []LineItem, paymentProof string) *Order {
	now := GetCurrentTime()

	snapshot := make([]LineItem, len(items))
	copy(snapshot, items)

	total := SumSubtotals(snapshot)

	if paymentProof == "" {
		paymentProof = NoPaymentProof
	}

	return &Order{
		ID:           GenerateOrderID(now),
		Customer:     customer,
		Items:        snapshot,
		Total:        total,
		PaymentProof: paymentProof,
		Status:       OrderStatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	c.Items = make([]LineItem, len(o.Items))
	copy(c.Items, o.Items)
	return &c
}

// MatchesFilter reports whether the order is selected by a status filter
func (o *Order) MatchesFilter(filter string) bool {
	return filter == "" || filter == StatusFilterAll || string(o.Status) == filter
}

// OrderStats summarises the ledger for the admin dashboard
type OrderStats struct {
	Total     int   `json:"total" db:"total"`
	Pending   int   `json:"pending" db:"pending"`
	Confirmed int   `json:"confirmed" db:"confirmed"`
	Delivered int   `json:"delivered" db:"delivered"`
	Revenue   int64 `json:"revenue" db:"revenue"`
}

// Add folds one order into the stats
func (s *OrderStats) Add(o *Order) {
	s.Total++
	s.Revenue += o.Total

	switch o.Status {
	case OrderStatusPending:
		s.Pending++
	case OrderStatusConfirmed:
		s.Confirmed++
	case OrderStatusDelivered:
		s.Delivered++
	}
}
