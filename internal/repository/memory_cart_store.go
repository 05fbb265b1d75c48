package repository

import (
	"context"
	"sync"
	"time"

	"github.com/vaidashi/chickiemart-api/internal/models"
)

type cartEntry struct {
	cart      *models.Cart
	expiresAt time.Time
}

// MemoryCartStore keeps cart sessions in process memory.
// A zero ttl keeps carts until they are deleted.
type MemoryCartStore struct {
	mu    sync.Mutex
	carts map[string]*cartEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryCartStore creates an empty cart store
func NewMemoryCartStore(ttl time.Duration) *MemoryCartStore {
	return &MemoryCartStore{
		carts: make(map[string]*cartEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// lookup returns the live entry for id, dropping it if expired. Caller holds mu.
func (s *MemoryCartStore) lookup(id string) (*cartEntry, bool) {
	e, ok := s.carts[id]

	if !ok {
		return nil, false
	}

	if s.ttl > 0 && s.now().After(e.expiresAt) {
		delete(s.carts, id)
		return nil, false
	}

	return e, true
}

func (s *MemoryCartStore) touch(e *cartEntry) {
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
}

// Create stores a new cart session
func (s *MemoryCartStore) Create(ctx context.Context, cart *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lookup(cart.ID); exists {
		return ErrVersionConflict
	}

	e := &cartEntry{cart: cart.Clone()}
	s.touch(e)
	s.carts[cart.ID] = e

	return nil
}

// Get returns a copy of the cart and extends its lifetime
func (s *MemoryCartStore) Get(ctx context.Context, id string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)

	if !ok {
		return nil, ErrNotFound
	}

	s.touch(e)

	return e.cart.Clone(), nil
}

// Update applies fn to the stored cart under the store lock
func (s *MemoryCartStore) Update(ctx context.Context, id string, fn func(cart *models.Cart) error) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(id)

	if !ok {
		return nil, ErrNotFound
	}

	working := e.cart.Clone()

	if err := fn(working); err != nil {
		return nil, err
	}

	e.cart = working
	s.touch(e)

	return working.Clone(), nil
}

// Delete removes the cart session
func (s *MemoryCartStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(id); !ok {
		return ErrNotFound
	}

	delete(s.carts, id)
	return nil
}
