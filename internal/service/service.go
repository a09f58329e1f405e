package service

import (
	"context"
	"time"

	"pantry-service/internal/models"

	"github.com/google/uuid"
)

// EventPublisher is where services send domain events after a commit
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	PublishStockMoved(ctx context.Context, event *models.StockMovedEvent) error
}

// Settings are the business switches shared by the services
type Settings struct {
	EnforcePointLimit      bool
	EnforceStock           bool
	ExcludeClientAllergens bool
	DefaultPointsPerVisit  int
	CartTTL                time.Duration
	AvailabilityCacheTTL   time.Duration
	CheckoutLockTTL        time.Duration
	LowStockThreshold      int64
}

// DefaultSettings mirrors the configuration defaults
func DefaultSettings() Settings {
	return Settings{
		EnforcePointLimit:     true,
		EnforceStock:          true,
		DefaultPointsPerVisit: 100,
		CartTTL:               24 * time.Hour,
		AvailabilityCacheTTL:  5 * time.Minute,
		CheckoutLockTTL:       30 * time.Second,
		LowStockThreshold:     5,
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}
