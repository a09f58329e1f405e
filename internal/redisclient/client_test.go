package redisclient

import (
	"context"
	"testing"
	"time"

	"pantry-service/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Wrap(rdb), mr
}

func TestCartAddMergesAndKeepsOrder(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	qty, err := c.AddToCart(ctx, "s1", models.CartLine{ProductID: "Apples", Quantity: 2, Points: 2, Category: models.CategoryFruits}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), qty)

	_, err = c.AddToCart(ctx, "s1", models.CartLine{ProductID: "Milk", Quantity: 1, Points: 3, Category: models.CategoryDairy}, time.Hour)
	require.NoError(t, err)

	qty, err = c.AddToCart(ctx, "s1", models.CartLine{ProductID: "Apples", Quantity: 3, Points: 2, Category: models.CategoryFruits}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(5), qty)

	cart, err := c.GetCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, models.CartLine{ProductID: "Apples", Quantity: 5, Points: 2, Category: models.CategoryFruits}, cart.Lines[0])
	assert.Equal(t, "Milk", cart.Lines[1].ProductID)
	assert.Equal(t, 13, cart.TotalPoints())

	ttl := mr.TTL("cart:{s1}:qty")
	assert.Equal(t, time.Hour, ttl)

	mr.FastForward(2 * time.Hour)
	expired, err := c.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, expired.IsEmpty())
}

func TestCartRemoveAndClear(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	for _, id := range []string{"Apples", "Milk", "Rice"} {
		_, err := c.AddToCart(ctx, "s2", models.CartLine{ProductID: id, Quantity: 1}, 0)
		require.NoError(t, err)
	}

	removed, err := c.RemoveFromCart(ctx, "s2", "Milk")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.RemoveFromCart(ctx, "s2", "Milk")
	require.NoError(t, err)
	assert.False(t, removed)

	cart, err := c.GetCart(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, "Apples", cart.Lines[0].ProductID)
	assert.Equal(t, "Rice", cart.Lines[1].ProductID)

	require.NoError(t, c.ClearCart(ctx, "s2"))
	cart, err = c.GetCart(ctx, "s2")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestRenameProductInCarts(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	add := func(cart, id string, qty int64) {
		_, err := c.AddToCart(ctx, cart, models.CartLine{ProductID: id, Quantity: qty, Points: 1}, time.Hour)
		require.NoError(t, err)
	}
	add("s1", "Apples", 2)
	add("s1", "Milk", 1)
	add("s2", "Apples", 1)
	add("s2", "Gala", 4)
	add("s3", "Rice", 1)

	n, err := c.RenameProductInCarts(ctx, "Apples", "Gala")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	s1, err := c.GetCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, s1.Lines, 2)
	assert.Equal(t, models.CartLine{ProductID: "Gala", Quantity: 2, Points: 1}, s1.Lines[0])
	assert.Equal(t, "Milk", s1.Lines[1].ProductID)
	assert.Equal(t, time.Hour, mr.TTL("cart:{s1}:qty"))

	s2, err := c.GetCart(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, s2.Lines, 1)
	assert.Equal(t, models.CartLine{ProductID: "Gala", Quantity: 5, Points: 1}, s2.Lines[0])

	add("s4", "Apples", 1)
	_, err = c.RenameProductInCarts(ctx, "Apples", "Fuji")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("cart:{s4}:qty"))
	assert.Equal(t, time.Hour, mr.TTL("cart:{s4}:meta"))

	s3, err := c.GetCart(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, "Rice", s3.Lines[0].ProductID)

	n, err = c.RenameProductInCarts(ctx, "Apples", "Gala")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAvailabilityCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, found, err := c.GetAvailability(ctx, "Apples")
	require.NoError(t, err)
	assert.False(t, found)

	snap := models.Availability{ProductID: "Apples", OnHand: 45, Balances: map[string]int64{"Pantry": 45, "Reserved": 5}}
	require.NoError(t, c.SetAvailability(ctx, snap, time.Minute))

	got, found, err := c.GetAvailability(ctx, "Apples")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, snap, got)

	require.NoError(t, c.InvalidateAvailability(ctx, "Apples", "Milk"))
	assert.False(t, mr.Exists("availability:Apples"))
}

func TestLockIsExclusiveAndOwned(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	token, ok, err := c.AcquireLock(ctx, "checkout:s1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = c.AcquireLock(ctx, "checkout:s1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// a stale token must not free somebody else's lock
	require.NoError(t, c.ReleaseLock(ctx, "checkout:s1", "stale"))
	assert.True(t, mr.Exists("lock:checkout:s1"))

	require.NoError(t, c.ReleaseLock(ctx, "checkout:s1", token))
	assert.False(t, mr.Exists("lock:checkout:s1"))
}
