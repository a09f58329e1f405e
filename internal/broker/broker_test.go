package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pantry-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublisherKeysEvents(t *testing.T) {
	w := &recordingWriter{}
	pub := NewEventPublisher(newProducer(w))
	ctx := context.Background()

	require.NoError(t, pub.PublishOrderEvent(ctx, &models.OrderEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderPlaced, Timestamp: time.Now()},
		OrderID:   105,
		ClientID:  "C00101",
	}))
	require.NoError(t, pub.PublishStockMoved(ctx, &models.StockMovedEvent{
		BaseEvent:   models.BaseEvent{EventID: "e2", EventType: models.EventTypeStockMoved, Timestamp: time.Now()},
		ProductID:   "Apples",
		MovementIDs: []int64{106},
	}))

	require.Len(t, w.messages, 2)
	assert.Equal(t, "order-105", string(w.messages[0].Key))
	assert.Equal(t, "product-Apples", string(w.messages[1].Key))

	var decoded models.OrderEvent
	require.NoError(t, json.Unmarshal(w.messages[0].Value, &decoded))
	assert.Equal(t, "C00101", decoded.ClientID)
}

func TestPublisherWrapsWriteErrors(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	pub := NewEventPublisher(newProducer(w))

	err := pub.PublishStockMoved(context.Background(), &models.StockMovedEvent{ProductID: "Apples"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestEventHandlerRoutesByType(t *testing.T) {
	h := NewEventHandler()
	var orders []models.OrderEvent
	var moved []models.StockMovedEvent
	h.OnOrderEvent(func(ctx context.Context, e *models.OrderEvent) error {
		orders = append(orders, *e)
		return nil
	})
	h.OnStockMoved(func(ctx context.Context, e *models.StockMovedEvent) error {
		moved = append(moved, *e)
		return nil
	})

	msg := func(v any) kafka.Message {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return kafka.Message{Value: data}
	}

	ctx := context.Background()
	require.NoError(t, h.HandleMessage(ctx, msg(models.OrderEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeOrderCancelled},
		OrderID:   7,
		Reason:    "client no-show",
	})))
	require.NoError(t, h.HandleMessage(ctx, msg(models.StockMovedEvent{
		BaseEvent: models.BaseEvent{EventType: models.EventTypeStockMoved},
		ProductID: "Rice",
	})))
	require.NoError(t, h.HandleMessage(ctx, msg(models.BaseEvent{EventType: "SOMETHING_ELSE"})))

	require.Len(t, orders, 1)
	assert.Equal(t, "client no-show", orders[0].Reason)
	require.Len(t, moved, 1)
	assert.Equal(t, "Rice", moved[0].ProductID)

	assert.Error(t, h.HandleMessage(ctx, kafka.Message{Value: []byte("not json")}))
}
