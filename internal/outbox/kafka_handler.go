package outbox

import (
	"context"
	"fmt"

	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// Publisher sends a keyed payload to a topic
type Publisher interface {
	SendMessage(ctx context.Context, topic string, key string, value []byte) error
}

// KafkaHandler publishes outbox messages to Kafka
type KafkaHandler struct {
	logger    logger.Logger
	publisher Publisher
	topic     string
}

// NewKafkaHandler creates a new KafkaHandler
func NewKafkaHandler(publisher Publisher, topic string, logger logger.Logger) *KafkaHandler {
	return &KafkaHandler{
		publisher: publisher,
		topic:     topic,
		logger:    logger,
	}
}

// HandleMessage publishes the event envelope keyed by order id, so all events
// of one order land on the same partition in order.
func (h *KafkaHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	key := message.AggregateID

	h.logger.Debug("Publishing message to Kafka",
		"topic", h.topic,
		"messageID", message.ID,
		"orderID", key,
		"eventType", message.EventType)

	if err := h.publisher.SendMessage(ctx, h.topic, key, message.Payload); err != nil {
		return fmt.Errorf("failed to publish message to Kafka: %w", err)
	}

	h.logger.Info("Published order event",
		"topic", h.topic,
		"messageID", message.ID,
		"orderID", key)

	return nil
}
