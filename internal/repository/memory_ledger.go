package repository

import (
	"context"
	"sync"
	"time"

	"github.com/vaidashi/chickiemart-api/internal/models"
)

// MemoryLedger keeps orders and their outbox messages in process memory.
// Orders are stored per record with a version, so a stale writer gets
// ErrVersionConflict instead of overwriting a newer status.
//
// Completed outbox messages are kept up to a retention count; older ones are
// pruned once twice that many have accumulated.
type MemoryLedger struct {
	mu        sync.RWMutex
	orders    []*models.Order
	index     map[string]int
	outbox    []*models.OutboxMessage
	messages  map[int64]*models.OutboxMessage
	outboxID  int64
	completed int
	retention int
}

// DefaultCompletedRetention is how many delivered outbox messages a MemoryLedger keeps
const DefaultCompletedRetention = 1000

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return NewMemoryLedgerWithRetention(DefaultCompletedRetention)
}

// NewMemoryLedgerWithRetention creates an empty ledger that keeps at most
// retention completed outbox messages after each prune
func NewMemoryLedgerWithRetention(retention int) *MemoryLedger {
	if retention < 0 {
		retention = 0
	}

	return &MemoryLedger{
		index:     make(map[string]int),
		messages:  make(map[int64]*models.OutboxMessage),
		retention: retention,
	}
}

func (l *MemoryLedger) appendOutbox(msg *models.OutboxMessage) {
	if msg == nil {
		return
	}

	l.outboxID++
	msg.ID = l.outboxID
	stored := *msg
	l.outbox = append(l.outbox, &stored)
	l.messages[stored.ID] = &stored
}

// pruneCompleted drops the oldest completed messages beyond the retention count.
// Callers hold l.mu.
func (l *MemoryLedger) pruneCompleted() {
	if l.completed <= 2*l.retention {
		return
	}

	drop := l.completed - l.retention
	kept := l.outbox[:0]

	for _, m := range l.outbox {
		if drop > 0 && m.Status == models.OutboxStatusCompleted {
			delete(l.messages, m.ID)
			drop--
			continue
		}
		kept = append(kept, m)
	}

	for i := len(kept); i < len(l.outbox); i++ {
		l.outbox[i] = nil
	}

	l.outbox = kept
	l.completed = l.retention
}

// Create appends the order and its event in one step
func (l *MemoryLedger) Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[order.ID]; exists {
		return ErrVersionConflict
	}

	l.index[order.ID] = len(l.orders)
	l.orders = append(l.orders, order.Clone())
	l.appendOutbox(event)

	return nil
}

// GetByID returns a copy of the order
func (l *MemoryLedger) GetByID(ctx context.Context, id string) (*models.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[id]

	if !ok {
		return nil, ErrNotFound
	}

	return l.orders[i].Clone(), nil
}

// List returns orders matching the status filter, oldest first
func (l *MemoryLedger) List(ctx context.Context, status string) ([]*models.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	orders := make([]*models.Order, 0, len(l.orders))

	for _, o := range l.orders {
		if o.MatchesFilter(status) {
			orders = append(orders, o.Clone())
		}
	}

	return orders, nil
}

// UpdateStatus stores order.Status if the stored version still equals expectedVersion.
// On success order.Version and order.UpdatedAt reflect the new record.
func (l *MemoryLedger) UpdateStatus(ctx context.Context, order *models.Order, expectedVersion int64, event *models.OutboxMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[order.ID]

	if !ok {
		return ErrNotFound
	}

	stored := l.orders[i]

	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}

	stored.Status = order.Status
	stored.Version++
	stored.UpdatedAt = models.GetCurrentTime()

	order.Version = stored.Version
	order.UpdatedAt = stored.UpdatedAt

	l.appendOutbox(event)

	return nil
}

// Stats aggregates the dashboard counters
func (l *MemoryLedger) Stats(ctx context.Context) (*models.OrderStats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := &models.OrderStats{}

	for _, o := range l.orders {
		stats.Add(o)
	}

	return stats, nil
}

// GetPendingMessages returns pending outbox messages, oldest first
func (l *MemoryLedger) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var messages []*models.OutboxMessage

	for _, m := range l.outbox {
		if len(messages) >= limit {
			break
		}

		if m.Status == models.OutboxStatusPending {
			c := *m
			messages = append(messages, &c)
		}
	}

	return messages, nil
}

func (l *MemoryLedger) updateMessage(id int64, fn func(m *models.OutboxMessage)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.messages[id]

	if !ok {
		return ErrNotFound
	}

	wasCompleted := m.Status == models.OutboxStatusCompleted
	fn(m)

	switch isCompleted := m.Status == models.OutboxStatusCompleted; {
	case isCompleted && !wasCompleted:
		l.completed++
		l.pruneCompleted()
	case !isCompleted && wasCompleted:
		l.completed--
	}

	return nil
}

// MarkAsProcessing moves a message to processing and counts the attempt
func (l *MemoryLedger) MarkAsProcessing(ctx context.Context, id int64) error {
	return l.updateMessage(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusProcessing
		m.ProcessingAttempts++
	})
}

// MarkAsCompleted marks the message delivered
func (l *MemoryLedger) MarkAsCompleted(ctx context.Context, id int64) error {
	return l.updateMessage(id, func(m *models.OutboxMessage) {
		now := time.Now().UTC()
		m.Status = models.OutboxStatusCompleted
		m.ProcessedAt = &now
	})
}

// MarkAsFailed marks the message as permanently failed
func (l *MemoryLedger) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return l.updateMessage(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusFailed
		m.LastError = &errorMessage
	})
}

// MarkAsPending puts the message back in the queue for another attempt
func (l *MemoryLedger) MarkAsPending(ctx context.Context, id int64, errorMessage string) error {
	return l.updateMessage(id, func(m *models.OutboxMessage) {
		m.Status = models.OutboxStatusPending
		m.LastError = &errorMessage
	})
}

// GetFailedMessages returns failed messages, newest first
func (l *MemoryLedger) GetFailedMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var messages []*models.OutboxMessage

	for i := len(l.outbox) - 1; i >= 0 && len(messages) < limit; i-- {
		if m := l.outbox[i]; m.Status == models.OutboxStatusFailed {
			c := *m
			messages = append(messages, &c)
		}
	}

	return messages, nil
}

// Requeue resets a failed message to pending with a fresh attempt budget
func (l *MemoryLedger) Requeue(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.messages[id]

	if !ok || m.Status != models.OutboxStatusFailed {
		return ErrNotFound
	}

	m.Status = models.OutboxStatusPending
	m.ProcessingAttempts = 0

	return nil
}

// Messages returns a copy of every outbox message, used by tests and diagnostics
func (l *MemoryLedger) Messages() []models.OutboxMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.OutboxMessage, len(l.outbox))
	for i, m := range l.outbox {
		out[i] = *m
	}

	return out
}
