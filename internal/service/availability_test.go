package service

import (
	"context"
	"testing"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnHandBasics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)

	assert.Equal(t, int64(0), env.onHand(t, "Apples"))

	_, err := env.availability.OnHand(ctx, "Durian")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	env.receive(t, "Apples", 20)
	first := env.onHand(t, "Apples")
	second := env.onHand(t, "Apples")
	assert.Equal(t, first, second)
}

func TestCachedAvailabilityIsInvalidatedOnWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)
	env.receive(t, "Apples", 20)

	a, err := env.availability.Cached(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(20), a.OnHand)
	assert.True(t, env.mr.Exists("availability:Apples"))

	a, err = env.availability.Cached(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(20), a.OnHand)

	env.receive(t, "Apples", 5)
	assert.False(t, env.mr.Exists("availability:Apples"))

	a, err = env.availability.Cached(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(25), a.OnHand)
}

func TestCachedFallsBackToReplayWhenRedisIsDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)
	env.receive(t, "Apples", 7)

	env.mr.Close()

	a, err := env.availability.Cached(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(7), a.OnHand)
}

func TestVerifyDetectsProjectionDriftAndRebuildRepairsIt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)
	env.receive(t, "Apples", 20)
	require.NoError(t, env.availability.Verify(ctx, "Apples"))

	_, err := env.store.GetDB().ExecContext(ctx,
		"UPDATE stock_balances SET qty = qty + 3 WHERE product_id = 'Apples' AND location_id = 'Pantry'")
	require.NoError(t, err)

	err = env.availability.Verify(ctx, "Apples")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeIntegrity))
	assert.Equal(t, []string{"Pantry"}, apperror.As(err).Details()["locations"])

	require.NoError(t, env.availability.Rebuild(ctx))
	require.NoError(t, env.availability.Verify(ctx, "Apples"))
}

func TestOutboundByLocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)
	client := env.client(t, 100)
	env.receive(t, "Apples", 20)

	env.addToCart(t, "s1", "Apples", 3)
	_, err := env.orders.KioskCheckout(ctx, "s1", client.ClientID)
	require.NoError(t, err)

	_, err = env.ledger.Append(ctx, models.MovementInput{
		ProductID: "Apples", Qty: 2, From: models.At(models.LocationPantry), To: models.External(),
	})
	require.NoError(t, err)

	outbound, err := env.availability.OutboundByLocation(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{models.LocationPantry: 5}, outbound)
}

func TestWarmCacheFillsEveryProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)
	env.product(t, "Milk", 1)

	require.NoError(t, env.availability.WarmCache(ctx))
	assert.True(t, env.mr.Exists("availability:Apples"))
	assert.True(t, env.mr.Exists("availability:Milk"))
}
