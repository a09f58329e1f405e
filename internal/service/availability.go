package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pantry-service/internal/apperror"
	"pantry-service/internal/ledger"
	"pantry-service/internal/models"
	"pantry-service/internal/redisclient"
	"pantry-service/internal/store"
	"pantry-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// AvailabilityService derives stock positions from the ledger. Replay is the
// authority; the balance table and the Redis cache are projections of it.
type AvailabilityService struct {
	store    *store.Store
	redis    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(store *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *AvailabilityService {
	return &AvailabilityService{
		store:    store,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// OnHand replays the product's movements and returns what can be handed out
func (s *AvailabilityService) OnHand(ctx context.Context, productID string) (int64, error) {
	movements, err := s.replaySource(ctx, productID)
	if err != nil {
		return 0, err
	}
	onHand := ledger.OnHand(movements)
	if onHand < 0 {
		s.warnNegative(productID, onHand)
	}
	return onHand, nil
}

// Snapshot is on-hand plus net balances per location and any warnings
func (s *AvailabilityService) Snapshot(ctx context.Context, productID string) (models.Availability, error) {
	ctx, span := util.StartSpan(ctx, "AvailabilityService.Snapshot", attribute.String("product_id", productID))
	defer span.End()

	movements, err := s.replaySource(ctx, productID)
	if err != nil {
		return models.Availability{}, err
	}

	a := models.Availability{
		ProductID: productID,
		OnHand:    ledger.OnHand(movements),
		Balances:  nonZero(ledger.Balances(movements)),
	}
	if a.OnHand < 0 {
		s.warnNegative(productID, a.OnHand)
		a.Warnings = append(a.Warnings, fmt.Sprintf("negative on-hand quantity %d", a.OnHand))
	}
	return a, nil
}

// BalanceByLocation is the staff report view of one product
func (s *AvailabilityService) BalanceByLocation(ctx context.Context, productID string) (map[string]int64, error) {
	movements, err := s.replaySource(ctx, productID)
	if err != nil {
		return nil, err
	}
	return ledger.BalanceReport(movements), nil
}

// OutboundByLocation totals what left each location for one product
func (s *AvailabilityService) OutboundByLocation(ctx context.Context, productID string) (map[string]int64, error) {
	movements, err := s.replaySource(ctx, productID)
	if err != nil {
		return nil, err
	}
	return ledger.OutboundByLocation(movements), nil
}

// Verify compares a ledger replay with the balance projection
func (s *AvailabilityService) Verify(ctx context.Context, productID string) error {
	movements, err := s.replaySource(ctx, productID)
	if err != nil {
		return err
	}
	projected, err := s.store.GetBalances(ctx, productID)
	if err != nil {
		return err
	}

	replayed := nonZero(ledger.Balances(movements))
	locations := make(map[string]struct{})
	for loc := range replayed {
		locations[loc] = struct{}{}
	}
	for loc := range projected {
		locations[loc] = struct{}{}
	}

	var mismatched []string
	for loc := range locations {
		if replayed[loc] != projected[loc] {
			mismatched = append(mismatched, loc)
		}
	}
	if len(mismatched) == 0 {
		return nil
	}

	sort.Strings(mismatched)
	s.logger.Error("Balance projection disagrees with ledger",
		zap.String("product_id", productID),
		zap.Strings("locations", mismatched))
	return apperror.New(apperror.CodeIntegrity, "balance projection disagrees with ledger").
		WithDetails(map[string]any{
			"product_id": productID,
			"locations":  mismatched,
			"replayed":   replayed,
			"projected":  projected,
		})
}

// Rebuild re-derives the balance projection from the ledger and drops the cache
func (s *AvailabilityService) Rebuild(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "AvailabilityService.Rebuild")
	defer span.End()

	if err := s.store.RebuildBalances(ctx); err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to rebuild balances: %w", err)
	}

	products, err := s.store.GetProducts(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ProductID
	}
	s.Invalidate(ctx, ids...)

	s.logger.Info("Balance projection rebuilt", zap.Int("products", len(products)))
	return nil
}

// Cached serves a snapshot from Redis, replaying and filling the cache on a
// miss. Redis failures fall back to a direct replay.
func (s *AvailabilityService) Cached(ctx context.Context, productID string) (models.Availability, error) {
	ctx, span := util.StartSpan(ctx, "AvailabilityService.Cached", attribute.String("product_id", productID))
	defer span.End()

	cached, found, err := s.redis.GetAvailability(ctx, productID)
	if err != nil {
		s.logger.Warn("Availability cache read failed, replaying ledger",
			zap.String("product_id", productID),
			zap.Error(err))
		return s.Snapshot(ctx, productID)
	}
	if found {
		util.AvailabilityCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}

	util.AvailabilityCacheTotal.WithLabelValues("miss").Inc()
	return s.Refresh(ctx, productID)
}

// Refresh replays a product and stores the snapshot in the cache
func (s *AvailabilityService) Refresh(ctx context.Context, productID string) (models.Availability, error) {
	snapshot, err := s.Snapshot(ctx, productID)
	if err != nil {
		return models.Availability{}, err
	}
	if err := s.redis.SetAvailability(ctx, snapshot, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache availability",
			zap.String("product_id", productID),
			zap.Error(err))
	}
	return snapshot, nil
}

// Invalidate drops cached snapshots after a write
func (s *AvailabilityService) Invalidate(ctx context.Context, productIDs ...string) {
	if err := s.redis.InvalidateAvailability(ctx, productIDs...); err != nil {
		s.logger.Warn("Failed to invalidate availability cache",
			zap.Strings("product_ids", productIDs),
			zap.Error(err))
	}
}

// WarmCache fills the availability cache for every product
func (s *AvailabilityService) WarmCache(ctx context.Context) error {
	s.logger.Info("Starting availability cache warm-up")

	products, err := s.store.GetProducts(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for _, product := range products {
		if _, err := s.Refresh(ctx, product.ProductID); err != nil {
			s.logger.Error("Failed to warm availability",
				zap.String("product_id", product.ProductID),
				zap.Error(err))
		}
	}

	s.logger.Info("Availability cache warm-up completed", zap.Int("count", len(products)))
	return nil
}

// replaySource loads a product's movements in ledger order. Unknown products
// are NotFound; a product without movements replays to zero.
func (s *AvailabilityService) replaySource(ctx context.Context, productID string) ([]models.Movement, error) {
	start := time.Now()
	defer func() {
		util.ReplayLatency.Observe(time.Since(start).Seconds())
	}()

	exists, err := s.store.ProductExists(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.NotFound("product", productID)
	}
	return s.store.GetMovementsByProduct(ctx, productID)
}

func (s *AvailabilityService) warnNegative(productID string, onHand int64) {
	util.NegativeOnHandTotal.Inc()
	s.logger.Warn("Negative on-hand quantity",
		zap.String("product_id", productID),
		zap.Int64("on_hand", onHand))
}

func nonZero(balances map[string]int64) map[string]int64 {
	for loc, qty := range balances {
		if qty == 0 {
			delete(balances, loc)
		}
	}
	return balances
}
