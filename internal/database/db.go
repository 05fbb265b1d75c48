package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/vaidashi/chickiemart-api/internal/config"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
	"github.com/vaidashi/chickiemart-api/pkg/retry"
)

// Database represents a database connection
type Database struct {
	DB     *sqlx.DB
	logger logger.Logger
}

// New creates a new database connection, retrying while postgres is still starting
func New(ctx context.Context, cfg *config.Config, logger logger.Logger) (*Database, error) {
	var db *sqlx.DB

	connect := func() error {
		var err error
		db, err = sqlx.ConnectContext(ctx, "postgres", cfg.GetDBConnString())
		return err
	}

	err := retry.Retry(ctx, connect, &retry.RetryConfig{
		MaxAttempts: 5,
		BackoffStrategy: &retry.ExponentialBackoff{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
		Logger: logger,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("Connected to database", "host", cfg.DB.Host, "database", cfg.DB.Name)

	return &Database{
		DB:     db,
		logger: logger,
	}, nil
}

// Wrap adapts an existing sqlx handle, used by tests
func Wrap(db *sqlx.DB, logger logger.Logger) *Database {
	return &Database{DB: db, logger: logger}
}

// Ping checks the database connection
func (d *Database) Ping(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}

const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id VARCHAR(40) PRIMARY KEY,
		customer_name TEXT NOT NULL,
		customer_phone TEXT NOT NULL,
		customer_address TEXT NOT NULL,
		items JSONB NOT NULL,
		total BIGINT NOT NULL,
		payment_proof TEXT NOT NULL,
		status VARCHAR(20) NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		seq BIGSERIAL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
	CREATE INDEX IF NOT EXISTS idx_orders_seq ON orders(seq);

	CREATE TABLE IF NOT EXISTS outbox_messages (
		id SERIAL PRIMARY KEY,
		aggregate_type VARCHAR(50) NOT NULL,
		aggregate_id VARCHAR(50) NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT NOW(),
		processed_at TIMESTAMP,
		processing_attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		status VARCHAR(20) NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_messages(status);
	CREATE INDEX IF NOT EXISTS idx_outbox_aggregate ON outbox_messages(aggregate_type, aggregate_id);
`

// RunMigrations creates the ledger and outbox tables if missing
func (d *Database) RunMigrations(ctx context.Context) error {
	if _, err := d.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.logger.Info("Database migrations completed successfully")
	return nil
}
