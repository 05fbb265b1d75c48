package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vaidashi/chickiemart-api/internal/models"
	"github.com/vaidashi/chickiemart-api/pkg/logger"
)

const (
	cartKeyPrefix     = "cart:"
	cartUpdateRetries = 3
)

// RedisCartStore keeps cart sessions as JSON documents under cart:<id> with a sliding TTL
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewRedisCartStore creates a new RedisCartStore
func NewRedisCartStore(client *redis.Client, ttl time.Duration, logger logger.Logger) *RedisCartStore {
	return &RedisCartStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cartKey(id string) string {
	return cartKeyPrefix + id
}

func decodeCart(data []byte) (*models.Cart, error) {
	var cart models.Cart

	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}

	if cart.Items == nil {
		cart.Items = []models.LineItem{}
	}

	return &cart, nil
}

// Create stores a new cart session, failing if the id is taken
func (s *RedisCartStore) Create(ctx context.Context, cart *models.Cart) error {
	payload, err := json.Marshal(cart)

	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}

	ok, err := s.client.SetNX(ctx, cartKey(cart.ID), payload, s.ttl).Result()

	if err != nil {
		s.logger.Error("Failed to create cart", "error", err, "cartID", cart.ID)
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if !ok {
		return ErrVersionConflict
	}

	return nil
}

// Get loads the cart and extends its TTL
func (s *RedisCartStore) Get(ctx context.Context, id string) (*models.Cart, error) {
	key := cartKey(id)
	data, err := s.client.Get(ctx, key).Bytes()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		s.logger.Error("Failed to get cart", "error", err, "cartID", id)
		return nil, fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			s.logger.Warn("Failed to refresh cart TTL", "error", err, "cartID", id)
		}
	}

	return decodeCart(data)
}

// Update applies fn inside a WATCH transaction and retries when another
// writer touched the cart in between.
func (s *RedisCartStore) Update(ctx context.Context, id string, fn func(cart *models.Cart) error) (*models.Cart, error) {
	key := cartKey(id)

	var updated *models.Cart

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %w", ErrDatabase, err)
		}

		cart, err := decodeCart(data)

		if err != nil {
			return err
		}

		if err := fn(cart); err != nil {
			return err
		}

		payload, err := json.Marshal(cart)

		if err != nil {
			return fmt.Errorf("encode cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})

		if err != nil {
			return err
		}

		updated = cart
		return nil
	}

	for attempt := 0; attempt < cartUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)

		if err == nil {
			return updated, nil
		}

		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug("Cart changed during update, retrying", "cartID", id, "attempt", attempt+1)
			continue
		}

		if errors.Is(err, ErrDatabase) {
			s.logger.Error("Failed to update cart", "error", err, "cartID", id)
		}

		return nil, err
	}

	return nil, ErrVersionConflict
}

// Delete removes the cart session
func (s *RedisCartStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, cartKey(id)).Result()

	if err != nil {
		s.logger.Error("Failed to delete cart", "error", err, "cartID", id)
		return fmt.Errorf("%w: %w", ErrDatabase, err)
	}

	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks the redis connection
func (s *RedisCartStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
