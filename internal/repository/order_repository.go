package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vaidashi/chickiemart-api/internal/database"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

// OrderRepository handles database operations for orders
type OrderRepository struct {
	db     *database.Database
	outbox *OutboxRepository
	logger logger.Logger
}

// NewOrderRepository creates a new OrderRepository
func NewOrderRepository(db *database.Database, outbox *OutboxRepository, logger logger.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		outbox: outbox,
		logger: logger,
	}
}

type orderRow struct {
	ID              string    `db:"id"`
	CustomerName    string    `db:"customer_name"`
	CustomerPhone   string    `db:"customer_phone"`
	CustomerAddress string    `db:"customer_address"`
	Items           []byte    `db:"items"`
	Total           int64     `db:"total"`
	PaymentProof    string    `db:"payment_proof"`
	Status          string    `db:"status"`
	Version         int64     `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r orderRow) toModel() (*models.Order, error) {
	var items []models.LineItem

	if err := json.Unmarshal(r.Items, &items); err != nil {
		return nil, fmt.Errorf("decode items of order %s: %w", r.ID, err)
	}

	return &models.Order{
		ID: r.ID,
		Customer: models.Customer{
			Name:    r.CustomerName,
			Phone:   r.CustomerPhone,
			Address: r.CustomerAddress,
		},
		Items:        items,
		Total:        r.Total,
		PaymentProof: r.PaymentProof,
		Status:       models.OrderStatus(r.Status),
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

const orderColumns = `id, customer_name, customer_phone, customer_address, items, total,
		payment_proof, status, version, created_at, updated_at`

// withTx runs fn in a transaction, rolling back on error
func (r *OrderRepository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := r.db.DB.BeginTxx(ctx, nil)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error("Failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}

// Create inserts a new order and its outbox message in one transaction
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error {
	items, err := json.Marshal(order.Items)

	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO orders (id, customer_name, customer_phone, customer_address, items, total,
				payment_proof, status, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`

		_, err := tx.ExecContext(
			ctx,
			query,
			order.ID,
			order.Customer.Name,
			order.Customer.Phone,
			order.Customer.Address,
			items,
			order.Total,
			order.PaymentProof,
			string(order.Status),
			order.Version,
			order.CreatedAt,
			order.UpdatedAt,
		)

		if err != nil {
			r.logger.Error("Failed to create order", "error", err, "orderID", order.ID)
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		if event != nil {
			if err := r.outbox.CreateInTx(ctx, tx, event); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetByID retrieves an order by its ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	var row orderRow
	err := r.db.DB.GetContext(ctx, &row, query, id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to get order by ID", "error", err, "orderID", id)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return row.toModel()
}

// List retrieves orders in insertion order, optionally filtered by status.
// An empty status or "all" returns every order.
func (r *OrderRepository) List(ctx context.Context, status string) ([]*models.Order, error) {
	if status == models.StatusFilterAll {
		status = ""
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY seq ASC
	`

	var rows []orderRow
	err := r.db.DB.SelectContext(ctx, &rows, query, status)

	if err != nil {
		r.logger.Error("Failed to list orders", "error", err, "status", status)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	orders := make([]*models.Order, 0, len(rows))

	for _, row := range rows {
		o, err := row.toModel()

		if err != nil {
			return nil, err
		}

		orders = append(orders, o)
	}

	return orders, nil
}

// UpdateStatus writes order.Status guarded by expectedVersion and records the event
func (r *OrderRepository) UpdateStatus(ctx context.Context, order *models.Order, expectedVersion int64, event *models.OutboxMessage) error {
	now := models.GetCurrentTime()

	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			UPDATE orders
			SET status = $1, version = version + 1, updated_at = $2
			WHERE id = $3 AND version = $4
		`

		result, err := tx.ExecContext(ctx, query, string(order.Status), now, order.ID, expectedVersion)

		if err != nil {
			r.logger.Error("Failed to update order status", "error", err, "orderID", order.ID)
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		rowsAffected, err := result.RowsAffected()

		if err != nil {
			return fmt.Errorf("%w: %v", ErrDatabase, err)
		}

		if rowsAffected == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, order.ID); err != nil {
				return fmt.Errorf("%w: %v", ErrDatabase, err)
			}

			if !exists {
				return ErrNotFound
			}

			return ErrVersionConflict
		}

		if event != nil {
			if err := r.outbox.CreateInTx(ctx, tx, event); err != nil {
				return err
			}
		}

		order.Version = expectedVersion + 1
		order.UpdatedAt = now

		return nil
	})
}

// Stats aggregates order counts and revenue
func (r *OrderRepository) Stats(ctx context.Context) (*models.OrderStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'confirmed') AS confirmed,
			COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
			COALESCE(SUM(total), 0) AS revenue
		FROM orders
	`

	var stats models.OrderStats
	err := r.db.DB.GetContext(ctx, &stats, query)

	if err != nil {
		r.logger.Error("Failed to compute order stats", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return &stats, nil
}
