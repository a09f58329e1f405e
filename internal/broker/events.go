package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pantry-service/internal/models"
	"pantry-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// OrderKey is the partition key for an order's events
func OrderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// ProductKey is the partition key for a product's stock events
func ProductKey(productID string) string {
	return fmt.Sprintf("product-%s", productID)
}

// PublishOrderEvent publishes any order lifecycle event
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return ep.producer.PublishEvent(ctx, OrderKey(event.OrderID), event)
}

// PublishStockMoved publishes StockMoved event
func (ep *EventPublisher) PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error {
	return ep.producer.PublishEvent(ctx, ProductKey(event.ProductID), event)
}

// NopPublisher drops events; used when Kafka is disabled
type NopPublisher struct{}

func (NopPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	util.GetLogger().Debug("Event publishing disabled", zap.String("event_type", event.EventType))
	return nil
}

func (NopPublisher) PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error {
	util.GetLogger().Debug("Event publishing disabled", zap.String("event_type", event.EventType))
	return nil
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderEvent func(context.Context, *models.OrderEvent) error
	onStockMoved func(context.Context, *models.StockMovedEvent) error
	logger       *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderEvent registers a handler for every order lifecycle event
func (eh *EventHandler) OnOrderEvent(handler func(context.Context, *models.OrderEvent) error) {
	eh.onOrderEvent = handler
}

// OnStockMoved registers a handler for StockMoved events
func (eh *EventHandler) OnStockMoved(handler func(context.Context, *models.StockMovedEvent) error) {
	eh.onStockMoved = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))
	util.EventsConsumedTotal.WithLabelValues(baseEvent.EventType).Inc()

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced, models.EventTypeOrderReady,
		models.EventTypeOrderCompleted, models.EventTypeOrderCancelled:
		if eh.onOrderEvent != nil {
			var event models.OrderEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal %s event: %w", baseEvent.EventType, err)
			}
			return eh.onOrderEvent(ctx, &event)
		}

	case models.EventTypeStockMoved:
		if eh.onStockMoved != nil {
			var event models.StockMovedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal StockMoved event: %w", err)
			}
			return eh.onStockMoved(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
