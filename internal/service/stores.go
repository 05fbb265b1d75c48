package service

import (
	"context"

	"github.com/vaidashi/chickiemart-api/internal/models"
)

// CartStore persists cart sessions. Implementations return repository.ErrNotFound
// for unknown ids and run Update atomically per cart.
type CartStore interface {
	Create(ctx context.Context, cart *models.Cart) error
	Get(ctx context.Context, id string) (*models.Cart, error)
	Update(ctx context.Context, id string, fn func(cart *models.Cart) error) (*models.Cart, error)
	Delete(ctx context.Context, id string) error
}

// OrderStore is the order ledger. Create and UpdateStatus record the outbox
// event in the same unit of work as the order change.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, status string) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, order *models.Order, expectedVersion int64, event *models.OutboxMessage) error
	Stats(ctx context.Context) (*models.OrderStats, error)
}

// ProductCatalog resolves product ids to catalog entries
type ProductCatalog interface {
	List() []models.Product
	Get(id string) (models.Product, bool)
}
