package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaidashi/chickiemart-api/internal/catalog"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/internal/repository"
	apperrors "github.com/vaidashi/chickiemart-api/pkg/errors"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

type checkoutFixture struct {
	ledger *repository.MemoryLedger
	carts  *CartService
	orders *OrderService
}

func newCheckoutFixture() *checkoutFixture {
	ledger := repository.NewMemoryLedger()
	store := repository.NewMemoryCartStore(time.Hour)

	return &checkoutFixture{
		ledger: ledger,
		carts:  NewCartService(store, catalog.Default(), logger.NewNop()),
		orders: NewOrderService(ledger, store, logger.NewNop()),
	}
}

// scenarioCart holds product 1 (2500) once and product 2 (2000) twice
func (f *checkoutFixture) scenarioCart(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	cart, err := f.carts.CreateCart(ctx)
	require.NoError(t, err)

	_, err = f.carts.AddProduct(ctx, cart.ID, "1", 1)
	require.NoError(t, err)
	_, err = f.carts.AddProduct(ctx, cart.ID, "2", 2)
	require.NoError(t, err)

	return cart.ID
}

func (f *checkoutFixture) ledgerSize(t *testing.T) int {
	t.Helper()

	orders, err := f.ledger.List(context.Background(), models.StatusFilterAll)
	require.NoError(t, err)

	return len(orders)
}

var ada = models.Customer{Name: "Ada", Phone: "0800", Address: "12 Rd"}

func TestSubmitOrderScenario(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()
	cartID := f.scenarioCart(t)

	order, err := f.orders.SubmitOrder(ctx, cartID, ada, "")
	require.NoError(t, err)

	assert.Equal(t, int64(6500), order.Total)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, models.NoPaymentProof, order.PaymentProof)
	assert.Regexp(t, `^ORD-\d+-[0-9a-f]{4}$`, order.ID)

	cart, err := f.carts.GetCart(ctx, cartID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	found, err := f.orders.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.Total, found.Total)

	messages := f.ledger.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, models.EventOrderCreated, messages[0].EventType)
	assert.Equal(t, order.ID, messages[0].AggregateID)
}

func TestSubmitOrderTrimsCustomerAndKeepsProof(t *testing.T) {
	f := newCheckoutFixture()
	cartID := f.scenarioCart(t)

	order, err := f.orders.SubmitOrder(context.Background(), cartID,
		models.Customer{Name: "  Ada  ", Phone: " 0800 ", Address: "\t12 Rd\n"}, "receipt.png")
	require.NoError(t, err)

	assert.Equal(t, ada, order.Customer)
	assert.Equal(t, "receipt.png", order.PaymentProof)
}

func TestSubmitOrderValidation(t *testing.T) {
	cases := []struct {
		name     string
		customer models.Customer
		message  string
	}{
		{"missing name", models.Customer{Name: "   ", Phone: "0800", Address: "12 Rd"}, "Please enter your name"},
		{"missing phone", models.Customer{Name: "Ada", Phone: "", Address: "12 Rd"}, "Please enter your phone number"},
		{"missing address", models.Customer{Name: "Ada", Phone: "0800", Address: " "}, "Please enter your delivery address"},
		{"name checked first", models.Customer{}, "Please enter your name"},
		{"phone before address", models.Customer{Name: "Ada"}, "Please enter your phone number"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckoutFixture()
			cartID := f.scenarioCart(t)

			_, err := f.orders.SubmitOrder(context.Background(), cartID, tc.customer, "")
			require.Error(t, err)
			assert.EqualError(t, err, tc.message)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

			assert.Zero(t, f.ledgerSize(t))

			cart, err := f.carts.GetCart(context.Background(), cartID)
			require.NoError(t, err)
			assert.Len(t, cart.Items, 2)
		})
	}
}

func TestSubmitOrderEmptyCart(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	cart, err := f.carts.CreateCart(ctx)
	require.NoError(t, err)

	_, err = f.orders.SubmitOrder(ctx, cart.ID, ada, "")
	assert.EqualError(t, err, "Your cart is empty")
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))
	assert.Zero(t, f.ledgerSize(t))
}

func TestSubmitOrderUnknownCart(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.orders.SubmitOrder(context.Background(), "missing", ada, "")
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
}

type failingOrderStore struct {
	*repository.MemoryLedger
	err error
}

func (s *failingOrderStore) Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error {
	return s.err
}

func TestSubmitOrderStoreFailureIsGeneric(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCartStore(time.Hour)
	carts := NewCartService(store, catalog.Default(), logger.NewNop())
	orders := NewOrderService(&failingOrderStore{MemoryLedger: repository.NewMemoryLedger(), err: repository.ErrDatabase}, store, logger.NewNop())

	cart, err := carts.CreateCart(ctx)
	require.NoError(t, err)
	_, err = carts.AddProduct(ctx, cart.ID, "3", 1)
	require.NoError(t, err)

	_, err = orders.SubmitOrder(ctx, cart.ID, ada, "")
	assert.EqualError(t, err, "Failed to submit order. Please try again.")
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))

	// the cart survives so the customer can retry
	got, err := carts.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

// hookedOrderStore runs beforeCreate ahead of recording the order
type hookedOrderStore struct {
	*repository.MemoryLedger
	beforeCreate func(ctx context.Context) error
}

func (s *hookedOrderStore) Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error {
	if err := s.beforeCreate(ctx); err != nil {
		return err
	}
	return s.MemoryLedger.Create(ctx, order, event)
}

func newHookedFixture(beforeCreate func(f *checkoutFixture, ctx context.Context) error) *checkoutFixture {
	store := repository.NewMemoryCartStore(time.Hour)
	ledger := repository.NewMemoryLedger()
	f := &checkoutFixture{
		ledger: ledger,
		carts:  NewCartService(store, catalog.Default(), logger.NewNop()),
	}

	hooked := &hookedOrderStore{MemoryLedger: ledger}
	hooked.beforeCreate = func(ctx context.Context) error { return beforeCreate(f, ctx) }
	f.orders = NewOrderService(hooked, store, logger.NewNop())

	return f
}

func TestSubmitOrderKeepsItemsAddedDuringCheckout(t *testing.T) {
	ctx := context.Background()
	var cartID string

	f := newHookedFixture(func(f *checkoutFixture, ctx context.Context) error {
		_, err := f.carts.AddProduct(ctx, cartID, "3", 1)
		return err
	})
	cartID = f.scenarioCart(t)

	order, err := f.orders.SubmitOrder(ctx, cartID, ada, "")
	require.NoError(t, err)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, int64(6500), order.Total)

	cart, err := f.carts.GetCart(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "3", cart.Items[0].ID)
}

func TestSubmitOrderFailureRestoresCartWithConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	var cartID string

	f := newHookedFixture(func(f *checkoutFixture, ctx context.Context) error {
		if _, err := f.carts.AddProduct(ctx, cartID, "1", 1); err != nil {
			return err
		}
		if _, err := f.carts.AddProduct(ctx, cartID, "3", 1); err != nil {
			return err
		}
		return repository.ErrDatabase
	})
	cartID = f.scenarioCart(t)

	_, err := f.orders.SubmitOrder(ctx, cartID, ada, "")
	assert.Equal(t, http.StatusInternalServerError, apperrors.HTTPStatus(err))
	assert.Zero(t, f.ledgerSize(t))

	cart, err := f.carts.GetCart(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 3)
	assert.Equal(t, "1", cart.Items[0].ID)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, "2", cart.Items[1].ID)
	assert.Equal(t, 2, cart.Items[1].Quantity)
	assert.Equal(t, "3", cart.Items[2].ID)
}

func TestSubmitOrderConcurrentSubmitsCreateOneOrder(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()
	cartID := f.scenarioCart(t)

	const submitters = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		empty     int
	)

	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := f.orders.SubmitOrder(ctx, cartID, ada, "")

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				succeeded++
			} else if err.Error() == "Your cart is empty" {
				empty++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, submitters-1, empty)
	assert.Equal(t, 1, f.ledgerSize(t))
}

func TestSubmitOrderSnapshotIsIndependent(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()
	cartID := f.scenarioCart(t)

	order, err := f.orders.SubmitOrder(ctx, cartID, ada, "")
	require.NoError(t, err)

	_, err = f.carts.AddProduct(ctx, cartID, "1", 5)
	require.NoError(t, err)

	found, err := f.orders.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6500), found.Total)
	assert.Equal(t, 1, found.Items[0].Quantity)
}

func TestListOrdersFilter(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	var ids []string
	for i := 0; i < 3; i++ {
		order, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "")
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}

	_, err := f.orders.UpdateStatus(ctx, ids[1], "confirmed", 0)
	require.NoError(t, err)

	all, err := f.orders.ListOrders(ctx, "all")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[0], all[0].ID)
	assert.Equal(t, ids[2], all[2].ID)

	confirmed, err := f.orders.ListOrders(ctx, "confirmed")
	require.NoError(t, err)
	require.Len(t, confirmed, 1)
	assert.Equal(t, ids[1], confirmed[0].ID)

	for _, o := range confirmed {
		assert.Equal(t, models.OrderStatusConfirmed, o.Status)
	}

	_, err = f.orders.ListOrders(ctx, "shipped")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFindOrderNotFound(t *testing.T) {
	f := newCheckoutFixture()

	_, err := f.orders.FindOrder(context.Background(), "ORD-0-0000")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.EqualError(t, err, "Order not found")
}

func TestUpdateStatusChangesOnlyStatus(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	order, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "proof.jpg")
	require.NoError(t, err)

	updated, err := f.orders.UpdateStatus(ctx, order.ID, "delivered", order.Version)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, updated.Status)
	assert.Equal(t, int64(2), updated.Version)

	stored, err := f.orders.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, stored.Status)
	assert.Equal(t, order.Total, stored.Total)
	assert.Equal(t, order.Items, stored.Items)
	assert.Equal(t, order.Customer, stored.Customer)
	assert.Equal(t, order.PaymentProof, stored.PaymentProof)
	assert.Equal(t, order.CreatedAt, stored.CreatedAt)

	messages := f.ledger.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, models.EventOrderStatusChanged, messages[1].EventType)
}

func TestUpdateStatusLeavesOtherOrdersUntouched(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	target, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "")
	require.NoError(t, err)
	other, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), models.Customer{Name: "Bo", Phone: "0801", Address: "3 Close"}, "bo.jpg")
	require.NoError(t, err)

	before, err := f.orders.FindOrder(ctx, other.ID)
	require.NoError(t, err)
	beforeJSON, err := json.Marshal(before)
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, target.ID, "delivered", 0)
	require.NoError(t, err)

	after, err := f.orders.FindOrder(ctx, other.ID)
	require.NoError(t, err)
	afterJSON, err := json.Marshal(after)
	require.NoError(t, err)

	assert.Equal(t, beforeJSON, afterJSON)
}

func TestClearCartDoesNotTouchLedger(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	_, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "receipt.jpg")
	require.NoError(t, err)

	before, err := f.orders.ListOrders(ctx, "all")
	require.NoError(t, err)
	beforeJSON, err := json.Marshal(before)
	require.NoError(t, err)

	second := f.scenarioCart(t)
	cleared, err := f.carts.ClearCart(ctx, second)
	require.NoError(t, err)
	assert.True(t, cleared.IsEmpty())

	after, err := f.orders.ListOrders(ctx, "all")
	require.NoError(t, err)
	afterJSON, err := json.Marshal(after)
	require.NoError(t, err)

	assert.Equal(t, beforeJSON, afterJSON)
	assert.Len(t, f.ledger.Messages(), 1)
}

func TestUpdateStatusAllowsAnyKnownTransition(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	order, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "")
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, order.ID, "delivered", 0)
	require.NoError(t, err)

	back, err := f.orders.UpdateStatus(ctx, order.ID, "pending", 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, back.Status)
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	order, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "")
	require.NoError(t, err)

	same, err := f.orders.UpdateStatus(ctx, order.ID, "pending", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), same.Version)
	assert.Len(t, f.ledger.Messages(), 1)
}

func TestUpdateStatusErrors(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	order, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "")
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, order.ID, "shipped", 0)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatus(err))

	_, err = f.orders.UpdateStatus(ctx, "ORD-0-ffff", "confirmed", 0)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))

	_, err = f.orders.UpdateStatus(ctx, order.ID, "confirmed", 1)
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, order.ID, "delivered", 1)
	assert.Equal(t, http.StatusConflict, apperrors.HTTPStatus(err))
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	stored, err := f.orders.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusConfirmed, stored.Status)
	assert.Equal(t, 1, f.ledgerSize(t))
}

// racingOrderStore lets another writer win the first UpdateStatus call
type racingOrderStore struct {
	*repository.MemoryLedger
	once sync.Once
}

func (s *racingOrderStore) UpdateStatus(ctx context.Context, order *models.Order, expectedVersion int64, event *models.OutboxMessage) error {
	var raced bool

	s.once.Do(func() {
		rival := order.Clone()
		rival.Status = models.OrderStatusConfirmed
		_ = s.MemoryLedger.UpdateStatus(ctx, rival, expectedVersion, nil)
		raced = true
	})

	if raced {
		return repository.ErrVersionConflict
	}

	return s.MemoryLedger.UpdateStatus(ctx, order, expectedVersion, event)
}

func TestUpdateStatusRetriesLostRaceWithoutExpectedVersion(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCartStore(time.Hour)
	ledger := &racingOrderStore{MemoryLedger: repository.NewMemoryLedger()}
	carts := NewCartService(store, catalog.Default(), logger.NewNop())
	orders := NewOrderService(ledger, store, logger.NewNop())

	cart, err := carts.CreateCart(ctx)
	require.NoError(t, err)
	_, err = carts.AddProduct(ctx, cart.ID, "4", 1)
	require.NoError(t, err)

	order, err := orders.SubmitOrder(ctx, cart.ID, ada, "")
	require.NoError(t, err)

	updated, err := orders.UpdateStatus(ctx, order.ID, "delivered", 0)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, updated.Status)
	assert.Equal(t, int64(3), updated.Version)
}

func TestUpdateStatusLostRaceWithExpectedVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryCartStore(time.Hour)
	ledger := &racingOrderStore{MemoryLedger: repository.NewMemoryLedger()}
	carts := NewCartService(store, catalog.Default(), logger.NewNop())
	orders := NewOrderService(ledger, store, logger.NewNop())

	cart, err := carts.CreateCart(ctx)
	require.NoError(t, err)
	_, err = carts.AddProduct(ctx, cart.ID, "4", 1)
	require.NoError(t, err)

	order, err := orders.SubmitOrder(ctx, cart.ID, ada, "")
	require.NoError(t, err)

	_, err = orders.UpdateStatus(ctx, order.ID, "delivered", 1)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newCheckoutFixture()

	first, err := f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "")
	require.NoError(t, err)
	_, err = f.orders.SubmitOrder(ctx, f.scenarioCart(t), ada, "")
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, first.ID, "confirmed", 0)
	require.NoError(t, err)

	stats, err := f.orders.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.OrderStats{Total: 2, Pending: 1, Confirmed: 1, Revenue: 13000}, stats)
}
