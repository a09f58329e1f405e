package worker

import (
	"context"

	"pantry-service/internal/broker"
	"pantry-service/internal/service"
	"pantry-service/internal/util"

	"go.uber.org/zap"
)

// consumer is the part of broker.Consumer the worker drives
type consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// AvailabilityWorker feeds domain events into the availability projector
type AvailabilityWorker struct {
	consumer     consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewAvailabilityWorker creates a new availability worker
func NewAvailabilityWorker(
	consumer *broker.Consumer,
	projector *service.AvailabilityProjector,
) *AvailabilityWorker {
	return newAvailabilityWorker(consumer, projector)
}

func newAvailabilityWorker(c consumer, projector *service.AvailabilityProjector) *AvailabilityWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnStockMoved(projector.HandleStockMoved)
	eventHandler.OnOrderEvent(projector.HandleOrderEvent)

	return &AvailabilityWorker{
		consumer:     c,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *AvailabilityWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting availability worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *AvailabilityWorker) Stop() error {
	w.logger.Info("Stopping availability worker")
	return w.consumer.Close()
}
