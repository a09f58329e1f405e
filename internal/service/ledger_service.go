package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"
	"pantry-service/internal/store"
	"pantry-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// LedgerService appends and corrects stock movements
type LedgerService struct {
	store        *store.Store
	ids          *IDAllocator
	availability *AvailabilityService
	publisher    EventPublisher
	logger       *zap.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	store *store.Store,
	ids *IDAllocator,
	availability *AvailabilityService,
	publisher EventPublisher,
) *LedgerService {
	return &LedgerService{
		store:        store,
		ids:          ids,
		availability: availability,
		publisher:    publisher,
		logger:       util.GetLogger(),
	}
}

// Append validates in, stamps it with a fresh id and the product's current
// price, and writes it together with the balance update.
func (s *LedgerService) Append(ctx context.Context, in models.MovementInput) (models.Movement, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Append", attribute.String("product_id", in.ProductID))
	defer span.End()

	product, err := validateMovement(ctx, s.store, in)
	if err != nil {
		util.RecordError(span, err)
		return models.Movement{}, err
	}

	id, err := s.ids.NextID(ctx)
	if err != nil {
		return models.Movement{}, fmt.Errorf("failed to allocate movement id: %w", err)
	}

	m := newMovement(id, in, product, time.Now().UTC())
	if err := s.store.InsertMovement(ctx, m); err != nil {
		util.RecordError(span, err)
		return models.Movement{}, err
	}

	util.MovementsAppendedTotal.WithLabelValues(movementKind(m)).Inc()
	s.logger.Info("Movement appended",
		zap.Int64("movement_id", m.MovementID),
		zap.String("product_id", m.ProductID),
		zap.Int64("qty", m.Qty),
		zap.String("from", m.From.String()),
		zap.String("to", m.To.String()))

	s.afterCommit(ctx, []models.Movement{m}, nil)
	return m, nil
}

// Get retrieves one movement
func (s *LedgerService) Get(ctx context.Context, id int64) (*models.Movement, error) {
	return s.store.GetMovement(ctx, id)
}

// ListForProduct returns a product's movements in ledger order
func (s *LedgerService) ListForProduct(ctx context.Context, productID string) ([]models.Movement, error) {
	if _, err := s.store.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.GetMovementsByProduct(ctx, productID)
}

// List returns movements matching filter in ledger order
func (s *LedgerService) List(ctx context.Context, filter store.MovementFilter) ([]models.Movement, error) {
	return s.store.ListMovements(ctx, filter)
}

// Update applies a staff correction to a movement and records the audit entry
func (s *LedgerService) Update(ctx context.Context, id int64, update models.MovementUpdate, reason, actor string) (models.Movement, error) {
	ctx, span := util.StartSpan(ctx, "LedgerService.Update", attribute.Int64("movement_id", id))
	defer span.End()

	correctionID, err := s.ids.NextID(ctx)
	if err != nil {
		return models.Movement{}, fmt.Errorf("failed to allocate correction id: %w", err)
	}

	var before, after models.Movement
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		current, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		before = *current

		in := models.MovementInput{
			ProductID: before.ProductID,
			Qty:       before.Qty,
			From:      before.From,
			To:        before.To,
			OrderID:   before.OrderID,
			Note:      before.Note,
		}
		if update.ProductID != nil {
			in.ProductID = *update.ProductID
		}
		if update.Qty != nil {
			in.Qty = *update.Qty
		}
		if update.From.Set {
			in.From = update.From.Endpoint
		}
		if update.To.Set {
			in.To = update.To.Endpoint
		}
		if _, err := validateMovement(ctx, tx, in); err != nil {
			return err
		}

		after = before
		after.ProductID = in.ProductID
		after.Qty = in.Qty
		after.From = in.From
		after.To = in.To

		if err := tx.ReplaceMovement(ctx, before, after); err != nil {
			return err
		}
		return tx.InsertCorrection(ctx, models.MovementCorrection{
			CorrectionID: correctionID,
			MovementID:   id,
			Action:       models.CorrectionUpdate,
			Before:       before,
			After:        &after,
			Reason:       reason,
			Actor:        actor,
		})
	})
	if err != nil {
		util.RecordError(span, err)
		return models.Movement{}, err
	}

	util.MovementCorrectionsTotal.WithLabelValues(models.CorrectionUpdate).Inc()
	s.logger.Info("Movement corrected",
		zap.Int64("movement_id", id),
		zap.String("actor", actor),
		zap.String("reason", reason))

	s.afterCommit(ctx, []models.Movement{after}, []string{before.ProductID})
	return after, nil
}

// Delete removes a movement by staff correction and records the audit entry
func (s *LedgerService) Delete(ctx context.Context, id int64, reason, actor string) error {
	ctx, span := util.StartSpan(ctx, "LedgerService.Delete", attribute.Int64("movement_id", id))
	defer span.End()

	correctionID, err := s.ids.NextID(ctx)
	if err != nil {
		return fmt.Errorf("failed to allocate correction id: %w", err)
	}

	var before models.Movement
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		current, err := tx.GetMovement(ctx, id)
		if err != nil {
			return err
		}
		before = *current

		if err := tx.RemoveMovement(ctx, before); err != nil {
			return err
		}
		return tx.InsertCorrection(ctx, models.MovementCorrection{
			CorrectionID: correctionID,
			MovementID:   id,
			Action:       models.CorrectionDelete,
			Before:       before,
			Reason:       reason,
			Actor:        actor,
		})
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	util.MovementCorrectionsTotal.WithLabelValues(models.CorrectionDelete).Inc()
	s.logger.Info("Movement deleted",
		zap.Int64("movement_id", id),
		zap.String("actor", actor),
		zap.String("reason", reason))

	s.afterCommit(ctx, nil, []string{before.ProductID})
	return nil
}

// Corrections lists the audit trail of one movement
func (s *LedgerService) Corrections(ctx context.Context, id int64) ([]models.MovementCorrection, error) {
	return s.store.GetCorrections(ctx, id)
}

// afterCommit invalidates cached availability and publishes one StockMoved
// event per product touched. Failures here are logged, never returned.
func (s *LedgerService) afterCommit(ctx context.Context, movements []models.Movement, extraProducts []string) {
	notifyStockMoved(ctx, s.availability, s.publisher, s.logger, movements, extraProducts, nil)
}

func notifyStockMoved(
	ctx context.Context,
	availability *AvailabilityService,
	publisher EventPublisher,
	logger *zap.Logger,
	movements []models.Movement,
	extraProducts []string,
	orderID *int64,
) {
	byProduct := make(map[string][]int64)
	for _, m := range movements {
		byProduct[m.ProductID] = append(byProduct[m.ProductID], m.MovementID)
	}
	for _, p := range extraProducts {
		if _, ok := byProduct[p]; !ok {
			byProduct[p] = []int64{}
		}
	}

	products := make([]string, 0, len(byProduct))
	for p := range byProduct {
		products = append(products, p)
	}
	sort.Strings(products)

	availability.Invalidate(ctx, products...)

	for _, productID := range products {
		event := &models.StockMovedEvent{
			BaseEvent:   newBaseEvent(models.EventTypeStockMoved),
			ProductID:   productID,
			MovementIDs: byProduct[productID],
			OrderID:     orderID,
		}
		if err := publisher.PublishStockMoved(ctx, event); err != nil {
			logger.Error("Failed to publish StockMoved event",
				zap.String("product_id", productID),
				zap.Error(err))
		}
	}
}

// validateMovement checks a movement before anything is written and returns
// the product it refers to.
func validateMovement(ctx context.Context, st *store.Store, in models.MovementInput) (*models.Product, error) {
	if in.Qty <= 0 {
		return nil, apperror.InvalidMovement("quantity must be positive").With("qty", in.Qty)
	}
	if in.From.IsExternal() && in.To.IsExternal() {
		return nil, apperror.InvalidMovement("a movement needs at least one location")
	}
	if !in.From.IsExternal() && in.From.Location() == in.To.Location() {
		return nil, apperror.InvalidMovement("source and destination are the same location").
			With("location_id", in.From.Location())
	}

	product, err := st.GetProductByID(ctx, in.ProductID)
	if apperror.Is(err, apperror.CodeNotFound) {
		return nil, apperror.InvalidMovement("unknown product").With("product_id", in.ProductID)
	}
	if err != nil {
		return nil, err
	}

	for _, e := range []models.Endpoint{in.From, in.To} {
		if e.IsExternal() {
			continue
		}
		exists, err := st.LocationExists(ctx, e.Location())
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperror.InvalidMovement("unknown location").With("location_id", e.Location())
		}
	}
	return product, nil
}

func newMovement(id int64, in models.MovementInput, product *models.Product, at time.Time) models.Movement {
	return models.Movement{
		MovementID: id,
		ProductID:  in.ProductID,
		Qty:        in.Qty,
		From:       in.From,
		To:         in.To,
		Price:      product.Price,
		OrderID:    in.OrderID,
		Note:       in.Note,
		MovedAt:    at,
	}
}

// movementKind labels a movement for metrics
func movementKind(m models.Movement) string {
	switch {
	case m.From.IsExternal():
		return util.MovementKindReceive
	case m.To.IsExternal():
		return util.MovementKindWriteOff
	case m.To.Is(models.LocationReserved):
		return util.MovementKindReserve
	case m.To.Is(models.LocationCustomer):
		return util.MovementKindConsume
	case m.From.Is(models.LocationReserved):
		return util.MovementKindRelease
	}
	return util.MovementKindTransfer
}
