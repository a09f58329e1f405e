package service

import (
	"context"
	"fmt"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"
	"pantry-service/internal/store"
	"pantry-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AvailabilityProjector consumes domain events and keeps the availability
// cache warm. Each event is applied at most once.
type AvailabilityProjector struct {
	store             *store.Store
	availability      *AvailabilityService
	lowStockThreshold int64
	logger            *zap.Logger
}

// NewAvailabilityProjector creates a new availability projector
func NewAvailabilityProjector(
	store *store.Store,
	availability *AvailabilityService,
	lowStockThreshold int64,
) *AvailabilityProjector {
	return &AvailabilityProjector{
		store:             store,
		availability:      availability,
		lowStockThreshold: lowStockThreshold,
		logger:            util.GetLogger(),
	}
}

// HandleStockMoved refreshes the cached snapshot of the product that moved
func (p *AvailabilityProjector) HandleStockMoved(ctx context.Context, event *models.StockMovedEvent) error {
	ctx, span := util.StartSpan(ctx, "AvailabilityProjector.HandleStockMoved",
		attribute.String("product_id", event.ProductID))
	defer span.End()

	processed, err := p.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	snapshot, err := p.availability.Refresh(ctx, event.ProductID)
	switch {
	case apperror.Is(err, apperror.CodeNotFound):
		// renamed or deleted since the event was published
		p.availability.Invalidate(ctx, event.ProductID)
	case err != nil:
		util.RecordError(span, err)
		return fmt.Errorf("failed to refresh availability: %w", err)
	default:
		p.checkLowStock(snapshot)
	}

	if err := p.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		p.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

// HandleOrderEvent records order lifecycle events
func (p *AvailabilityProjector) HandleOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "AvailabilityProjector.HandleOrderEvent",
		attribute.Int64("order_id", event.OrderID))
	defer span.End()

	processed, err := p.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		p.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	fields := []zap.Field{
		zap.String("event_type", event.EventType),
		zap.Int64("order_id", event.OrderID),
		zap.String("client_id", event.ClientID),
		zap.String("status", string(event.Status)),
	}
	if event.EventType == models.EventTypeOrderCancelled {
		p.logger.Warn("Order cancelled", append(fields, zap.String("reason", event.Reason))...)
	} else {
		p.logger.Info("Order event", fields...)
	}

	if err := p.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		p.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (p *AvailabilityProjector) checkLowStock(a models.Availability) {
	if a.OnHand > p.lowStockThreshold {
		return
	}
	util.LowStockTotal.WithLabelValues(a.ProductID).Inc()
	p.logger.Warn("Low stock",
		zap.String("product_id", a.ProductID),
		zap.Int64("on_hand", a.OnHand),
		zap.Int64("threshold", p.lowStockThreshold))
}
