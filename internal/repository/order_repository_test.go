package repository

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/chickiemart-api/internal/database"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

var orderCols = []string{
	"id", "customer_name", "customer_phone", "customer_address", "items", "total",
	"payment_proof", "status", "version", "created_at", "updated_at",
}

func newMockRepos(t *testing.T) (*OrderRepository, *OutboxRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	wrapped := database.Wrap(sqlx.NewDb(db, "postgres"), logger.NewNop())
	outbox := NewOutboxRepository(wrapped, logger.NewNop())

	return NewOrderRepository(wrapped, outbox, logger.NewNop()), outbox, mock
}

func orderRowValues(t *testing.T, o *models.Order) []driver.Value {
	t.Helper()

	items, err := json.Marshal(o.Items)
	require.NoError(t, err)

	return []driver.Value{
		o.ID, o.Customer.Name, o.Customer.Phone, o.Customer.Address, items, o.Total,
		o.PaymentProof, string(o.Status), o.Version, o.CreatedAt, o.UpdatedAt,
	}
}

func TestOrderRepositoryCreateWritesOutboxInSameTx(t *testing.T) {
	repo, _, mock := newMockRepos(t)
	order, event := newTestOrder(t, "Ada", 4500, 2)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(order.ID, "Ada", "08030000000", "12 Allen Avenue", sqlmock.AnyArg(), int64(9000),
			models.NoPaymentProof, "pending", int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").
		WithArgs("order", order.ID, models.EventOrderCreated, sqlmock.AnyArg(), sqlmock.AnyArg(), "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), order, event))
	assert.Equal(t, int64(7), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCreateRollsBackOnOutboxFailure(t *testing.T) {
	repo, _, mock := newMockRepos(t)
	order, event := newTestOrder(t, "Ada", 4500, 1)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), order, event)
	assert.ErrorIs(t, err, ErrDatabase)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryGetByID(t *testing.T) {
	repo, _, mock := newMockRepos(t)
	order, _ := newTestOrder(t, "Ada", 4500, 1)

	mock.ExpectQuery(`FROM orders WHERE id = \$1`).
		WithArgs(order.ID).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(orderRowValues(t, order)...))

	got, err := repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Equal(t, order.Customer, got.Customer)
	assert.Equal(t, order.Items, got.Items)
	assert.Equal(t, int64(4500), got.Total)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryGetByIDNotFound(t *testing.T) {
	repo, _, mock := newMockRepos(t)

	mock.ExpectQuery(`FROM orders WHERE id = \$1`).
		WithArgs("ORD-1-abcd").
		WillReturnRows(sqlmock.NewRows(orderCols))

	_, err := repo.GetByID(context.Background(), "ORD-1-abcd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderRepositoryListAllMapsToEmptyFilter(t *testing.T) {
	repo, _, mock := newMockRepos(t)
	a, _ := newTestOrder(t, "A", 1000, 1)
	b, _ := newTestOrder(t, "B", 2000, 1)

	mock.ExpectQuery("ORDER BY seq ASC").
		WithArgs("").
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(orderRowValues(t, a)...).
			AddRow(orderRowValues(t, b)...))

	orders, err := repo.List(context.Background(), models.StatusFilterAll)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, a.ID, orders[0].ID)
	assert.Equal(t, b.ID, orders[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryUpdateStatus(t *testing.T) {
	repo, _, mock := newMockRepos(t)
	order, _ := newTestOrder(t, "Ada", 4500, 1)
	order.Status = models.OrderStatusConfirmed

	event, err := models.NewOrderStatusChangedEvent(order, models.OrderStatusPending)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").
		WithArgs("confirmed", sqlmock.AnyArg(), order.ID, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO outbox_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateStatus(context.Background(), order, 1, event))
	assert.Equal(t, int64(2), order.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryUpdateStatusConflict(t *testing.T) {
	repo, _, mock := newMockRepos(t)
	order, _ := newTestOrder(t, "Ada", 4500, 1)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(order.ID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), order, 1, nil)
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.Equal(t, int64(1), order.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryUpdateStatusUnknownOrder(t *testing.T) {
	repo, _, mock := newMockRepos(t)
	order, _ := newTestOrder(t, "Ada", 4500, 1)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), order, 1, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryStats(t *testing.T) {
	repo, _, mock := newMockRepos(t)

	mock.ExpectQuery("COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"total", "pending", "confirmed", "delivered", "revenue"}).
			AddRow(3, 1, 1, 1, int64(13500)))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.OrderStats{Total: 3, Pending: 1, Confirmed: 1, Delivered: 1, Revenue: 13500}, stats)
}

func TestOutboxRepositoryMessages(t *testing.T) {
	_, outbox, mock := newMockRepos(t)
	ctx := context.Background()
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM outbox_messages").
		WithArgs("pending", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "aggregate_type", "aggregate_id", "event_type", "payload",
			"created_at", "processed_at", "processing_attempts", "last_error", "status",
		}).AddRow(int64(3), "order", "ORD-1-abcd", models.EventOrderCreated, []byte(`{}`),
			created, nil, 1, nil, "pending"))

	messages, err := outbox.GetPendingMessages(ctx, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(3), messages[0].ID)
	assert.Nil(t, messages[0].LastError)

	mock.ExpectExec("UPDATE outbox_messages").
		WithArgs("pending", "broker down", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, outbox.MarkAsPending(ctx, 3, "broker down"))

	mock.ExpectExec("UPDATE outbox_messages").
		WithArgs("pending", int64(3), "failed").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, outbox.Requeue(ctx, 3), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
