// Package redis holds the Redis-backed adapters: the cart view cache and the
// checkout idempotency store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
)

var _ cart.Cache = (*CartCache)(nil)

// CartCache implements cart.Cache. Entries expire after the base TTL plus a
// random jitter so carts written together do not expire together.
type CartCache struct {
	client  goredis.UniversalClient
	baseTTL time.Duration
	jitter  time.Duration
}

// NewCartCache returns a CartCache. A non-positive jitter disables it.
func NewCartCache(client goredis.UniversalClient, baseTTL, jitter time.Duration) *CartCache {
	return &CartCache{client: client, baseTTL: baseTTL, jitter: jitter}
}

func (c *CartCache) Get(ctx context.Context, userID string) (*cart.Snapshot, error) {
	data, err := c.client.Get(ctx, cartKey(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cart.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var snap cart.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &snap, nil
}

func (c *CartCache) Set(ctx context.Context, s *cart.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := c.client.Set(ctx, cartKey(s.UserID), data, c.ttl()).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

func (c *CartCache) Delete(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete cart: %w", err)
	}
	return nil
}

func (c *CartCache) ttl() time.Duration {
	if c.jitter <= 0 {
		return c.baseTTL
	}
	return c.baseTTL + rand.N(c.jitter)
}

func cartKey(userID string) string {
	return "cart:" + userID
}
