package models

import (
	"encoding/json"
	"time"
)

// Event types written to the outbox
const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusCompleted  OutboxStatus = "completed"
	OutboxStatusFailed     OutboxStatus = "failed"
)

// OutboxMessage represents an order event waiting to be delivered
type OutboxMessage struct {
	ID                 int64        `db:"id" json:"id"`
	AggregateType      string       `db:"aggregate_type" json:"aggregate_type"`
	AggregateID        string       `db:"aggregate_id" json:"aggregate_id"`
	EventType          string       `db:"event_type" json:"event_type"`
	Payload            []byte       `db:"payload" json:"payload"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
	ProcessedAt        *time.Time   `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingAttempts int          `db:"processing_attempts" json:"processing_attempts"`
	LastError          *string      `db:"last_error" json:"last_error,omitempty"`
	Status             OutboxStatus `db:"status" json:"status"`
}

// OutboxMessageEvent is the envelope serialized into the payload
type OutboxMessageEvent struct {
	EventType   string          `json:"event_type"`
	EventID     string          `json:"event_id"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data"`
}

// StatusChange is the data of an order_status_changed event
type StatusChange struct {
	OrderID       string      `json:"order_id"`
	OldStatus     OrderStatus `json:"old_status"`
	NewStatus     OrderStatus `json:"new_status"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone"`
}

func newOrderEvent(eventType string, orderID string, data interface{}) (*OutboxMessage, error) {
	raw, err := json.Marshal(data)

	if err != nil {
		return nil, err
	}

	now := GetCurrentTime()
	event := OutboxMessageEvent{
		EventType:   eventType,
		EventID:     GenerateID("evt"),
		AggregateID: orderID,
		OccurredAt:  now,
		Data:        raw,
	}

	payload, err := json.Marshal(event)

	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
		Status:        OutboxStatusPending,
	}, nil
}

// NewOrderCreatedEvent creates the outbox message for a newly submitted order
func NewOrderCreatedEvent(order *Order) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderCreated, order.ID, order)
}

// NewOrderStatusChangedEvent creates the outbox message for a status change
func NewOrderStatusChangedEvent(order *Order, oldStatus OrderStatus) (*OutboxMessage, error) {
	return newOrderEvent(EventOrderStatusChanged, order.ID, StatusChange{
		OrderID:       order.ID,
		OldStatus:     oldStatus,
		NewStatus:     order.Status,
		CustomerName:  order.Customer.Name,
		CustomerPhone: order.Customer.Phone,
	})
}

// DecodeEvent unpacks an outbox payload
func DecodeEvent(payload []byte) (*OutboxMessageEvent, error) {
	var event OutboxMessageEvent

	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	return &event, nil
}
