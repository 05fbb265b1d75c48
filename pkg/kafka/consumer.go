package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// ErrPoisonMessage marks a message that can never be handled. The consumer
// commits past it instead of waiting for redelivery.
var ErrPoisonMessage = errors.New("poison message")

var errHandlerFailed = errors.New("message handler failed")

// MessageHandler is the interface for handling messages from Kafka
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer is a wrapper around sarama.ConsumerGroup
type Consumer struct {
	consumerGroup   sarama.ConsumerGroup
	topics          []string
	handlers        map[string]MessageHandler
	logger          logger.Logger
	redeliveryDelay time.Duration
	wg              sync.WaitGroup
	ctx             context.Context
	cancel          context.CancelFunc
}

// ConsumerConfig is the configuration for the Kafka consumer
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	ConsumerGroup string
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *ConsumerConfig, logger logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Version = sarama.V2_1_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaCfg)

	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		consumerGroup:   consumerGroup,
		topics:          cfg.Topics,
		handlers:        make(map[string]MessageHandler),
		logger:          logger,
		redeliveryDelay: time.Second,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// RegisterHandler registers a message handler for a specific topic
func (c *Consumer) RegisterHandler(topic string, handler MessageHandler) {
	c.handlers[topic] = handler
}

// Start joins the consumer group in the background
func (c *Consumer) Start() error {
	if len(c.topics) == 0 {
		return fmt.Errorf("no topics to consume")
	}

	c.wg.Add(2)

	go func() {
		defer c.wg.Done()

		for {
			if err := c.consumerGroup.Consume(c.ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) || c.ctx.Err() != nil {
					return
				}

				c.logger.Error("Kafka consumer error, rejoining group", "error", err)

				select {
				case <-time.After(time.Second):
				case <-c.ctx.Done():
					return
				}
				continue
			}

			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		defer c.wg.Done()

		for {
			select {
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Warn("Kafka consumer group error", "error", err)
			case <-c.ctx.Done():
				return
			}
		}
	}()

	c.logger.Info("Kafka consumer started", "topics", c.topics)
	return nil
}

// Stop leaves the group and waits for the consume loop
func (c *Consumer) Stop() error {
	c.cancel()
	err := c.consumerGroup.Close()
	c.wg.Wait()
	return err
}

// Setup is run at the beginning of a new session, before ConsumeClaim
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim dispatches each message of a claim to the handler of its topic
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	return c.consume(session.Context(), claim.Messages(), func(msg *sarama.ConsumerMessage) {
		session.MarkMessage(msg, "")
	})
}

// consume dispatches messages in order until the channel closes or ctx ends.
// A failed message is not marked and stops the claim; sarama then ends the
// session and the next one resumes from the last marked offset.
func (c *Consumer) consume(ctx context.Context, messages <-chan *sarama.ConsumerMessage, mark func(*sarama.ConsumerMessage)) error {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}

			if !c.dispatch(ctx, msg) {
				c.waitForRedelivery(ctx)
				return fmt.Errorf("%w: topic %s partition %d offset %d", errHandlerFailed, msg.Topic, msg.Partition, msg.Offset)
			}

			mark(msg)

		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) waitForRedelivery(ctx context.Context) {
	if c.redeliveryDelay <= 0 {
		return
	}

	select {
	case <-time.After(c.redeliveryDelay):
	case <-ctx.Done():
	}
}

// dispatch runs the handler and reports whether the offset may be committed
func (c *Consumer) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	c.logger.Debug("Received message from Kafka",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key))

	handler, exists := c.handlers[msg.Topic]

	if !exists {
		c.logger.Warn("No handler registered for topic", "topic", msg.Topic)
		return true
	}

	err := handler.HandleMessage(ctx, msg)

	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrPoisonMessage):
		c.logger.Error("Skipping message that cannot be handled",
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset)
		return true
	default:
		c.logger.Error("Error handling message",
			"error", err,
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset)
		return false
	}
}
