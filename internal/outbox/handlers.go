package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// LoggingHandler is a message handler that logs the outbox message.
// It stands in for the Kafka publisher when no brokers are configured.
type LoggingHandler struct {
	logger logger.Logger
}

// NewLoggingHandler creates a new LoggingHandler
func NewLoggingHandler(logger logger.Logger) *LoggingHandler {
	return &LoggingHandler{
		logger: logger,
	}
}

// HandleMessage handles the outbox message by logging it
func (h *LoggingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	event, err := models.DecodeEvent(message.Payload)

	if err != nil {
		return fmt.Errorf("failed to unmarshal outbox message: %w", err)
	}

	h.logger.Info("Order event",
		"messageID", message.ID,
		"eventType", message.EventType,
		"orderID", message.AggregateID,
		"eventID", event.EventID,
		"occurredAt", event.OccurredAt)

	return nil
}

// MultiHandler fans one message out to several handlers. Every handler runs;
// the message fails if any of them fails, so delivery is at least once.
type MultiHandler []MessageHandler

// HandleMessage calls each handler in order
func (m MultiHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	var errs []error

	for _, h := range m {
		if err := h.HandleMessage(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
