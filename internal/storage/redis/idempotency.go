package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	goredis "github.com/redis/go-redis/v9"
)

// pendingMarker is stored while the checkout holding the key is running.
const pendingMarker = "pending"

// IdempotencyStore remembers which order an Idempotency-Key produced.
//
// Reserve claims a key with SET NX. Complete swaps the marker for the order
// id; Release drops the claim so a failed checkout can be retried.
type IdempotencyStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewIdempotencyStore returns an IdempotencyStore whose keys live for ttl.
func NewIdempotencyStore(client goredis.UniversalClient, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Reserve claims key for userID. When the key is already taken it returns
// reserved=false together with the order id, which is empty while the first
// checkout is still in flight.
func (s *IdempotencyStore) Reserve(ctx context.Context, userID, key string) (string, bool, error) {
	k := idempotencyKey(userID, key)
	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	v, err := s.client.Get(ctx, k).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		// Released between SETNX and GET; let the client retry.
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("redis read idempotency key: %w", err)
	case v == pendingMarker:
		return "", false, nil
	default:
		return v, false, nil
	}
}

// Complete records the order produced under key.
func (s *IdempotencyStore) Complete(ctx context.Context, userID, key, orderID string) error {
	if err := s.client.Set(ctx, idempotencyKey(userID, key), orderID, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis complete idempotency key: %w", err)
	}
	return nil
}

// Release forgets key.
func (s *IdempotencyStore) Release(ctx context.Context, userID, key string) error {
	if err := s.client.Del(ctx, idempotencyKey(userID, key)).Err(); err != nil {
		return fmt.Errorf("redis release idempotency key: %w", err)
	}
	return nil
}

func idempotencyKey(userID, key string) string {
	return "idem:" + userID + ":" + key
}
