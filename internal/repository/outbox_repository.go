package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/chickiemart-api/internal/database"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// OutboxRepository handles database operations for outbox messages
type OutboxRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *database.Database, logger logger.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// CreateInTx inserts an outbox message as part of an order transaction
func (r *OutboxRepository) CreateInTx(ctx context.Context, tx *sqlx.Tx, message *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (
			aggregate_type, aggregate_id, event_type, payload,
			created_at, status
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id
	`

	var id int64

	err := tx.QueryRowContext(
		ctx,
		query,
		message.AggregateType,
		message.AggregateID,
		message.EventType,
		message.Payload,
		message.CreatedAt,
		string(message.Status),
	).Scan(&id)

	if err != nil {
		r.logger.Error("Failed to create outbox message", "error", err, "aggregateID", message.AggregateID)
		return fmt.Errorf("%w: failed to create outbox message in transaction: %v", ErrDatabase, err)
	}

	message.ID = id
	return nil
}

// GetPendingMessages retrieves pending outbox messages, oldest first
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
			   created_at, processed_at, processing_attempts, last_error, status
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var messages []*models.OutboxMessage

	err := r.db.DB.SelectContext(ctx, &messages, query, string(models.OutboxStatusPending), limit)

	if err != nil {
		r.logger.Error("Failed to get pending outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

func (r *OutboxRepository) exec(ctx context.Context, action string, id int64, query string, args ...interface{}) error {
	result, err := r.db.DB.ExecContext(ctx, query, args...)

	if err != nil {
		r.logger.Error("Failed to "+action, "error", err, "messageID", id)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkAsProcessing updates the status of an outbox message to processing
func (r *OutboxRepository) MarkAsProcessing(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark outbox message as processing", id, `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = processing_attempts + 1
		WHERE id = $2
	`, string(models.OutboxStatusProcessing), id)
}

// MarkAsCompleted updates the status of an outbox message to completed
func (r *OutboxRepository) MarkAsCompleted(ctx context.Context, id int64) error {
	return r.exec(ctx, "mark outbox message as completed", id, `
		UPDATE outbox_messages
		SET status = $1, processed_at = $2
		WHERE id = $3
	`, string(models.OutboxStatusCompleted), time.Now().UTC(), id)
}

// MarkAsFailed updates the status of an outbox message to failed
func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64, errorMessage string) error {
	return r.exec(ctx, "mark outbox message as failed", id, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`, string(models.OutboxStatusFailed), errorMessage, id)
}

// MarkAsPending returns a message to the queue after a failed attempt
func (r *OutboxRepository) MarkAsPending(ctx context.Context, id int64, errorMessage string) error {
	return r.exec(ctx, "requeue outbox message", id, `
		UPDATE outbox_messages
		SET status = $1, last_error = $2
		WHERE id = $3
	`, string(models.OutboxStatusPending), errorMessage, id)
}

// GetFailedMessages retrieves messages that exhausted their retries, newest first
func (r *OutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
			   created_at, processed_at, processing_attempts, last_error, status
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	var messages []*models.OutboxMessage

	err := r.db.DB.SelectContext(ctx, &messages, query, string(models.OutboxStatusFailed), limit)

	if err != nil {
		r.logger.Error("Failed to get failed outbox messages", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return messages, nil
}

// Requeue resets a failed message so the processor picks it up again
func (r *OutboxRepository) Requeue(ctx context.Context, id int64) error {
	return r.exec(ctx, "requeue failed outbox message", id, `
		UPDATE outbox_messages
		SET status = $1, processing_attempts = 0
		WHERE id = $2 AND status = $3
	`, string(models.OutboxStatusPending), id, string(models.OutboxStatusFailed))
}
