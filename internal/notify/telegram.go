// Package notify alerts the shop owner about new orders over Telegram.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// Sender is the part of tgbotapi.BotAPI used here
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier is an outbox handler that posts new orders to the owner's chat
type TelegramNotifier struct {
	sender       Sender
	chatID       int64
	dashboardURL string
	logger       logger.Logger
}

// NewTelegramNotifier connects to the Bot API with token
func NewTelegramNotifier(token string, chatID int64, dashboardURL string, logger logger.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)

	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	logger.Info("Telegram notifier authorized", "bot", api.Self.UserName, "chatID", chatID)

	return NewTelegramNotifierWith(api, chatID, dashboardURL, logger), nil
}

// NewTelegramNotifierWith uses an existing sender
func NewTelegramNotifierWith(sender Sender, chatID int64, dashboardURL string, logger logger.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender:       sender,
		chatID:       chatID,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

// HandleMessage sends an alert for order_created events and ignores the rest
func (n *TelegramNotifier) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	if message.EventType != models.EventOrderCreated {
		return nil
	}

	event, err := models.DecodeEvent(message.Payload)

	if err != nil {
		return fmt.Errorf("decode outbox payload: %w", err)
	}

	var order models.Order

	if err := json.Unmarshal(event.Data, &order); err != nil {
		return fmt.Errorf("decode order: %w", err)
	}

	msg := tgbotapi.NewMessage(n.chatID, NewOrderText(&order))
	msg.DisableWebPagePreview = true

	if n.dashboardURL != "" {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Open dashboard", n.dashboardURL)),
		)
	}

	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}

	n.logger.Info("Owner notified of new order", "orderID", order.ID, "chatID", n.chatID)
	return nil
}

// NewOrderText renders the owner alert for an order
func NewOrderText(order *models.Order) string {
	var b strings.Builder

	fmt.Fprintf(&b, "New order %s\n", order.ID)
	fmt.Fprintf(&b, "Customer: %s\nPhone: %s\nAddress: %s\n\n", order.Customer.Name, order.Customer.Phone, order.Customer.Address)

	for _, item := range order.Items {
		fmt.Fprintf(&b, "%d x %s (%s) = ₦%d\n", item.Quantity, item.Name, item.Weight, item.Subtotal())
	}

	fmt.Fprintf(&b, "\nTotal: ₦%d\nPayment proof: %s", order.Total, order.PaymentProof)

	return b.String()
}
