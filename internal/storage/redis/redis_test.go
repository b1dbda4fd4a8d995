package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cupcake-checkout/internal/domain/cart"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCartCache_RoundTrip(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewCartCache(client, 10*time.Minute, 0)
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	require.ErrorIs(t, err, cart.ErrCacheMiss)

	snap := &cart.Snapshot{UserID: "u1", Lines: []cart.Line{{
		CupcakeID: "c1", Name: "Vanilla", Quantity: 2,
		UnitPrice: decimal.RequireFromString("12.90"), AvailableStock: 5,
	}}}
	require.NoError(t, c.Set(ctx, snap))
	assert.True(t, mr.Exists("cart:u1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("cart:u1"))

	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Lines, 1)
	assert.True(t, decimal.RequireFromString("25.80").Equal(got.ItemsSubtotal()))

	require.NoError(t, c.Delete(ctx, "u1"))
	_, err = c.Get(ctx, "u1")
	require.ErrorIs(t, err, cart.ErrCacheMiss)
}

func TestCartCache_TTLJitter(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewCartCache(client, 10*time.Minute, 5*time.Minute)

	require.NoError(t, c.Set(context.Background(), &cart.Snapshot{UserID: "u1"}))

	ttl := mr.TTL("cart:u1")
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 15*time.Minute)
}

func TestCartCache_Expiry(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewCartCache(client, time.Minute, 0)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, &cart.Snapshot{UserID: "u1"}))
	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "u1")
	require.ErrorIs(t, err, cart.ErrCacheMiss)
}

func TestCartCache_CorruptEntry(t *testing.T) {
	mr, client := setupRedis(t)
	c := NewCartCache(client, time.Minute, 0)
	require.NoError(t, mr.Set("cart:u1", "{not json"))

	_, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, cart.ErrCacheMiss)
}

func TestIdempotencyStore(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	id, reserved, err := s.Reserve(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Empty(t, id)

	// In flight.
	id, reserved, err = s.Reserve(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Empty(t, id)

	// Keys are scoped per user.
	_, reserved, err = s.Reserve(ctx, "u2", "k1")
	require.NoError(t, err)
	assert.True(t, reserved)

	require.NoError(t, s.Complete(ctx, "u1", "k1", "order-1"))
	id, reserved, err = s.Reserve(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Equal(t, "order-1", id)
	assert.Equal(t, time.Hour, mr.TTL("idem:u1:k1"))
}

func TestIdempotencyStore_Release(t *testing.T) {
	_, client := setupRedis(t)
	s := NewIdempotencyStore(client, time.Hour)
	ctx := context.Background()

	_, reserved, err := s.Reserve(ctx, "u1", "k1")
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, s.Release(ctx, "u1", "k1"))

	_, reserved, err = s.Reserve(ctx, "u1", "k1")
	require.NoError(t, err)
	assert.True(t, reserved, "released key can be claimed again")
}

func TestIdempotencyStore_Unavailable(t *testing.T) {
	mr, client := setupRedis(t)
	s := NewIdempotencyStore(client, time.Hour)
	mr.Close()

	_, _, err := s.Reserve(context.Background(), "u1", "k1")
	require.Error(t, err)
}
