package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/internal/repository"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

type countingHandler struct {
	calls    int
	failures int
	err      error
}

func (h *countingHandler) HandleMessage(ctx context.Context, message *models.OutboxMessage) error {
	h.calls++

	if h.calls <= h.failures {
		return h.err
	}

	return nil
}

type recordingPublisher struct {
	topic string
	key   string
	value []byte
	err   error
}

func (p *recordingPublisher) SendMessage(ctx context.Context, topic, key string, value []byte) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func seedLedger(t *testing.T) (*repository.MemoryLedger, *models.Order) {
	t.Helper()

	ledger := repository.NewMemoryLedger()
	order := models.NewOrder(
		models.Customer{Name: "Ada", Phone: "0800", Address: "12 Rd"},
		[]models.LineItem{{ID: "1", Name: "Chicken Breast", Price: 2500, Quantity: 1}},
		"",
	)

	event, err := models.NewOrderCreatedEvent(order)
	require.NoError(t, err)
	require.NoError(t, ledger.Create(context.Background(), order, event))

	return ledger, order
}

func newTestProcessor(store Store, maxRetries int) *Processor {
	return NewProcessor(store, ProcessorConfig{
		PollingInterval: time.Second,
		BatchSize:       10,
		MaxRetries:      maxRetries,
	}, logger.NewNop())
}

func TestProcessorCompletesMessages(t *testing.T) {
	ledger, _ := seedLedger(t)
	handler := &countingHandler{}

	p := newTestProcessor(ledger, 3)
	p.RegisterHandler(models.EventOrderCreated, handler)

	require.NoError(t, p.processBatch(context.Background()))

	assert.Equal(t, 1, handler.calls)
	msg := ledger.Messages()[0]
	assert.Equal(t, models.OutboxStatusCompleted, msg.Status)
	assert.Equal(t, 1, msg.ProcessingAttempts)
}

func TestProcessorRequeuesThenFails(t *testing.T) {
	ledger, _ := seedLedger(t)
	handler := &countingHandler{failures: 10, err: errors.New("broker down")}

	p := newTestProcessor(ledger, 2)
	p.RegisterHandler(models.EventOrderCreated, handler)
	ctx := context.Background()

	require.NoError(t, p.processBatch(ctx))
	msg := ledger.Messages()[0]
	assert.Equal(t, models.OutboxStatusPending, msg.Status)
	require.NotNil(t, msg.LastError)
	assert.Equal(t, "broker down", *msg.LastError)

	require.NoError(t, p.processBatch(ctx))
	msg = ledger.Messages()[0]
	assert.Equal(t, models.OutboxStatusFailed, msg.Status)
	assert.Equal(t, 2, msg.ProcessingAttempts)

	// failed messages are no longer picked up
	require.NoError(t, p.processBatch(ctx))
	assert.Equal(t, 2, handler.calls)

	failed, err := ledger.GetFailedMessages(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestProcessorRecoversAfterTransientFailure(t *testing.T) {
	ledger, _ := seedLedger(t)
	handler := &countingHandler{failures: 1, err: errors.New("timeout")}

	p := newTestProcessor(ledger, 3)
	p.RegisterHandler(models.EventOrderCreated, handler)
	ctx := context.Background()

	require.NoError(t, p.processBatch(ctx))
	require.NoError(t, p.processBatch(ctx))

	assert.Equal(t, models.OutboxStatusCompleted, ledger.Messages()[0].Status)
}

func TestProcessorUnknownEventTypeFails(t *testing.T) {
	ledger, _ := seedLedger(t)

	p := newTestProcessor(ledger, 3)
	require.NoError(t, p.processBatch(context.Background()))

	msg := ledger.Messages()[0]
	assert.Equal(t, models.OutboxStatusFailed, msg.Status)
	assert.Contains(t, *msg.LastError, "no handler registered")
}

func TestProcessorStartStop(t *testing.T) {
	ledger, _ := seedLedger(t)
	handler := &countingHandler{}

	p := NewProcessor(ledger, ProcessorConfig{PollingInterval: 10 * time.Millisecond, BatchSize: 5, MaxRetries: 3}, logger.NewNop())
	p.RegisterHandler(models.EventOrderCreated, handler)

	p.Start()
	p.Start()

	assert.Eventually(t, func() bool {
		return ledger.Messages()[0].Status == models.OutboxStatusCompleted
	}, time.Second, 10*time.Millisecond)

	p.Stop()
	p.Stop()
}

func TestKafkaHandlerPublishesKeyedByOrder(t *testing.T) {
	ledger, order := seedLedger(t)
	pub := &recordingPublisher{}

	h := NewKafkaHandler(pub, "chickiemart.orders", logger.NewNop())
	msg := ledger.Messages()[0]

	require.NoError(t, h.HandleMessage(context.Background(), &msg))
	assert.Equal(t, "chickiemart.orders", pub.topic)
	assert.Equal(t, order.ID, pub.key)
	assert.Equal(t, msg.Payload, pub.value)

	pub.err = errors.New("no leader")
	assert.Error(t, h.HandleMessage(context.Background(), &msg))
}

func TestMultiHandlerRunsAll(t *testing.T) {
	first := &countingHandler{failures: 1, err: errors.New("telegram down")}
	second := &countingHandler{}

	err := MultiHandler{first, second, NewLoggingHandler(logger.NewNop())}.
		HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte(`{"event_type":"order_created"}`)})

	assert.EqualError(t, err, "telegram down")
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestLoggingHandlerRejectsBadPayload(t *testing.T) {
	err := NewLoggingHandler(logger.NewNop()).HandleMessage(context.Background(), &models.OutboxMessage{Payload: []byte("{")})
	assert.Error(t, err)
}
