package service

import (
	"context"
	"testing"

	"pantry-service/internal/models"
	"pantry-service/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectorRefreshesCacheOncePerEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	projector := NewAvailabilityProjector(env.store, env.availability, 5)

	env.product(t, "Beans", 1)
	env.receive(t, "Beans", 3)
	require.Len(t, env.publisher.stockEvents, 1)
	event := env.publisher.stockEvents[0]

	lowStock := util.LowStockTotal.WithLabelValues("Beans")
	before := testutil.ToFloat64(lowStock)

	require.NoError(t, projector.HandleStockMoved(ctx, event))
	assert.True(t, env.mr.Exists("availability:Beans"))
	assert.Equal(t, before+1, testutil.ToFloat64(lowStock))

	env.mr.Del("availability:Beans")
	require.NoError(t, projector.HandleStockMoved(ctx, event))
	assert.False(t, env.mr.Exists("availability:Beans"), "duplicate delivery is skipped")
	assert.Equal(t, before+1, testutil.ToFloat64(lowStock))
}

func TestProjectorToleratesVanishedProducts(t *testing.T) {
	env := newTestEnv(t)
	projector := NewAvailabilityProjector(env.store, env.availability, 5)

	event := &models.StockMovedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockMoved),
		ProductID: "Renamed Away",
	}
	require.NoError(t, projector.HandleStockMoved(context.Background(), event))

	processed, err := env.store.IsEventProcessed(context.Background(), event.EventID)
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestProjectorRecordsOrderEvents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	projector := NewAvailabilityProjector(env.store, env.availability, 5)

	event := &models.OrderEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCancelled),
		OrderID:   7,
		Status:    models.OrderStatusCancelled,
		Reason:    "no-show",
	}
	require.NoError(t, projector.HandleOrderEvent(ctx, event))
	require.NoError(t, projector.HandleOrderEvent(ctx, event))

	processed, err := env.store.IsEventProcessed(ctx, event.EventID)
	require.NoError(t, err)
	assert.True(t, processed)
}
