package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/kafka"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// CustomerNotifier delivers a text message to a customer's phone
type CustomerNotifier interface {
	Notify(ctx context.Context, phone, text string) error
}

// LogNotifier writes customer notifications to the log instead of sending them
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (n *LogNotifier) Notify(ctx context.Context, phone, text string) error {
	n.logger.Info("Customer notification", "phone", phone, "text", text)
	return nil
}

// OrderEventsHandler turns order events from Kafka into customer notifications
type OrderEventsHandler struct {
	notifier CustomerNotifier
	logger   logger.Logger
}

// NewOrderEventsHandler creates a new OrderEventsHandler
func NewOrderEventsHandler(notifier CustomerNotifier, logger logger.Logger) *OrderEventsHandler {
	return &OrderEventsHandler{
		notifier: notifier,
		logger:   logger,
	}
}

// HandleMessage handles incoming order events from Kafka messages
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	event, err := models.DecodeEvent(msg.Value)

	if err != nil {
		return fmt.Errorf("%w: %v", kafka.ErrPoisonMessage, err)
	}

	h.logger.Debug("Handling order event",
		"eventType", event.EventType,
		"eventID", event.EventID,
		"orderID", event.AggregateID,
		"occurredAt", event.OccurredAt)

	switch event.EventType {
	case models.EventOrderCreated:
		return h.handleOrderCreated(ctx, event)
	case models.EventOrderStatusChanged:
		return h.handleOrderStatusChanged(ctx, event)
	default:
		h.logger.Warn("Unknown event type", "eventType", event.EventType)
		return nil
	}
}

func (h *OrderEventsHandler) handleOrderCreated(ctx context.Context, event *models.OutboxMessageEvent) error {
	var order models.Order

	if err := json.Unmarshal(event.Data, &order); err != nil {
		return fmt.Errorf("%w: order data: %v", kafka.ErrPoisonMessage, err)
	}

	return h.notifier.Notify(ctx, order.Customer.Phone, OrderReceivedText(&order))
}

func (h *OrderEventsHandler) handleOrderStatusChanged(ctx context.Context, event *models.OutboxMessageEvent) error {
	var change models.StatusChange

	if err := json.Unmarshal(event.Data, &change); err != nil {
		return fmt.Errorf("%w: status data: %v", kafka.ErrPoisonMessage, err)
	}

	text := StatusChangedText(&change)

	if text == "" {
		return nil
	}

	return h.notifier.Notify(ctx, change.CustomerPhone, text)
}

// OrderReceivedText is the message sent once an order is recorded
func OrderReceivedText(order *models.Order) string {
	return fmt.Sprintf("Hi %s, we have received your order %s (total ₦%d). We will confirm it shortly.",
		order.Customer.Name, order.ID, order.Total)
}

// StatusChangedText describes a status change to the customer, or "" when there is nothing to say
func StatusChangedText(change *models.StatusChange) string {
	switch change.NewStatus {
	case models.OrderStatusConfirmed:
		return fmt.Sprintf("Hi %s, your order %s has been confirmed and is being prepared.",
			change.CustomerName, change.OrderID)
	case models.OrderStatusDelivered:
		return fmt.Sprintf("Hi %s, your order %s has been delivered. Thank you for shopping with ChickieMart!",
			change.CustomerName, change.OrderID)
	default:
		return ""
	}
}
