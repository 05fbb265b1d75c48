package api

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vaidashi/chickiemart-api/internal/config"
	"github.com/vaidashi/chickiemart-api/internal/database"
	"github.com/vaidashi/chickiemart-api/internal/handlers"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/internal/notify"
	"github.com/vaidashi/chickiemart-api/internal/outbox"
	"github.com/vaidashi/chickiemart-api/internal/repository"
	"github.com/vaidashi/chickiemart-api/internal/service"
	"github.com/vaidashi/chickiemart-api/pkg/kafka"
)

// outboxStore is what both ledger backends offer the outbox processor and the admin view
type outboxStore interface {
	outbox.Store
	FailedMessageStore
}

func (s *Server) buildLedger(ctx context.Context) (service.OrderStore, outboxStore, error) {
	if s.config.Storage != config.DriverPostgres {
		ledger := repository.NewMemoryLedger()
		s.logger.Info("Using in-memory order ledger")
		return ledger, ledger, nil
	}

	db, err := database.New(ctx, s.config, s.logger)
	if err != nil {
		return nil, nil, err
	}
	s.closers = append(s.closers, db.Close)

	if err := db.RunMigrations(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	outboxRepo := repository.NewOutboxRepository(db, s.logger)
	orderRepo := repository.NewOrderRepository(db, outboxRepo, s.logger)
	s.healthChecks["postgres"] = db.Ping

	return orderRepo, outboxRepo, nil
}

func (s *Server) buildCartStore(ctx context.Context) (service.CartStore, error) {
	if s.config.CartStore != config.DriverRedis {
		return repository.NewMemoryCartStore(s.config.Redis.CartTTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     s.config.Redis.Addr,
		Password: s.config.Redis.Password,
		DB:       s.config.Redis.DB,
	})
	s.closers = append(s.closers, client.Close)

	store := repository.NewRedisCartStore(client, s.config.Redis.CartTTL, s.logger)

	if err := store.Ping(ctx); err != nil {
		return nil, err
	}

	s.healthChecks["redis"] = store.Ping
	s.logger.Info("Using redis cart store", "addr", s.config.Redis.Addr)

	return store, nil
}

// buildEventPipeline registers outbox handlers: Kafka when brokers are configured,
// otherwise the logging handler, plus the Telegram owner alert for new orders.
func (s *Server) buildEventPipeline(store outboxStore) error {
	s.outboxProcessor = outbox.NewProcessor(store, outbox.ProcessorConfig{
		PollingInterval: s.config.Outbox.PollingInterval,
		BatchSize:       s.config.Outbox.BatchSize,
		MaxRetries:      s.config.Outbox.MaxRetries,
	}, s.logger)

	var delivery outbox.MessageHandler = outbox.NewLoggingHandler(s.logger)

	if s.config.KafkaEnabled() {
		producer, err := kafka.NewProducer(s.config.Kafka.Brokers, s.logger)
		if err != nil {
			return err
		}
		s.kafkaProducer = producer
		s.closers = append(s.closers, producer.Close)
		delivery = outbox.NewKafkaHandler(producer, s.config.Kafka.OrdersTopic, s.logger)

		consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       s.config.Kafka.Brokers,
			Topics:        []string{s.config.Kafka.OrdersTopic},
			ConsumerGroup: s.config.Kafka.ConsumerGroup,
		}, s.logger)
		if err != nil {
			return err
		}
		consumer.RegisterHandler(s.config.Kafka.OrdersTopic,
			handlers.NewOrderEventsHandler(handlers.NewLogNotifier(s.logger), s.logger))
		s.kafkaConsumer = consumer
	}

	created := outbox.MultiHandler{delivery}

	if s.config.TelegramEnabled() {
		dashboard := ""
		if s.config.PublicBaseURL != "" {
			dashboard = s.config.PublicBaseURL + "/admin"
		}

		notifier, err := notify.NewTelegramNotifier(s.config.Telegram.Token, s.config.Telegram.ChatID, dashboard, s.logger)
		if err != nil {
			// The shop works without owner alerts
			s.logger.Error("Telegram notifications disabled", "error", err)
		} else {
			created = append(created, notifier)
		}
	}

	s.outboxProcessor.RegisterHandler(models.EventOrderCreated, created)
	s.outboxProcessor.RegisterHandler(models.EventOrderStatusChanged, delivery)

	return nil
}
