package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codewithrichardb/ecommerce-backend/internal/domain"
	apperrors "github.com/codewithrichardb/ecommerce-backend/pkg/errors"
)

const keyPrefix = "cart:"

// LiveCartStore implements repository.LiveCartStore using Redis. Recovered
// abandoned carts are rehydrated here so the storefront picks them up as
// the shopper's active cart.
type LiveCartStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLiveCartStore creates a new Redis-backed live cart store.
func NewLiveCartStore(client *redis.Client, ttl time.Duration) *LiveCartStore {
	return &LiveCartStore{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a live cart by email from Redis.
func (s *LiveCartStore) Get(ctx context.Context, email string) (*domain.LiveCart, error) {
	key := keyPrefix + email

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NotFound("cart", email)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.LiveCart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return &cart, nil
}

// Save persists a live cart to Redis with the configured TTL.
func (s *LiveCartStore) Save(ctx context.Context, cart *domain.LiveCart) error {
	key := keyPrefix + cart.Email

	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

// Delete removes a live cart from Redis by email.
func (s *LiveCartStore) Delete(ctx context.Context, email string) error {
	key := keyPrefix + email

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}

	return nil
}
