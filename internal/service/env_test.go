package service

import (
	"context"
	"sync"
	"testing"

	"pantry-service/internal/models"
	"pantry-service/internal/redisclient"
	"pantry-service/internal/store"
	"pantry-service/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu          sync.Mutex
	orderEvents []*models.OrderEvent
	stockEvents []*models.StockMovedEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event *models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orderEvents = append(p.orderEvents, event)
	return nil
}

func (p *recordingPublisher) PublishStockMoved(_ context.Context, event *models.StockMovedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stockEvents = append(p.stockEvents, event)
	return nil
}

func (p *recordingPublisher) orderEventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.orderEvents))
	for i, e := range p.orderEvents {
		types[i] = e.EventType
	}
	return types
}

type testEnv struct {
	store        *store.Store
	redis        *redisclient.Client
	mr           *miniredis.Miniredis
	publisher    *recordingPublisher
	settings     Settings
	ids          *IDAllocator
	availability *AvailabilityService
	ledger       *LedgerService
	catalog      *CatalogService
	carts        *CartService
	orders       *OrderService
	shop         *ShopService
	reports      *ReportService
}

func newTestEnv(t *testing.T, tweak ...func(*Settings)) *testEnv {
	t.Helper()

	settings := DefaultSettings()
	for _, fn := range tweak {
		fn(&settings)
	}

	st := storetest.New(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rc := redisclient.Wrap(rdb)

	pub := &recordingPublisher{}
	ids := NewIDAllocator(st)
	availability := NewAvailabilityService(st, rc, settings.AvailabilityCacheTTL)

	return &testEnv{
		store:        st,
		redis:        rc,
		mr:           mr,
		publisher:    pub,
		settings:     settings,
		ids:          ids,
		availability: availability,
		ledger:       NewLedgerService(st, ids, availability, pub),
		catalog:      NewCatalogService(st, rc, ids, availability, settings),
		carts:        NewCartService(st, rc, settings),
		orders:       NewOrderService(st, rc, ids, availability, pub, settings),
		shop:         NewShopService(st, availability, settings),
		reports:      NewReportService(st),
	}
}

func (e *testEnv) product(t *testing.T, id string, points int, mutate ...func(*ProductInput)) *models.Product {
	t.Helper()
	in := ProductInput{
		ProductID:      id,
		Price:          "1.50",
		PurchasePrice:  "1.00",
		Category:       models.CategoryFruits,
		Servings:       1,
		Points:         points,
		NutritionScore: 50,
	}
	for _, fn := range mutate {
		fn(&in)
	}
	p, err := e.catalog.CreateProduct(context.Background(), in)
	require.NoError(t, err)
	return p
}

func (e *testEnv) client(t *testing.T, points int) *models.Client {
	t.Helper()
	c, err := e.catalog.CreateClient(context.Background(), ClientInput{
		Name:           "Test Client",
		PointsPerVisit: points,
	})
	require.NoError(t, err)
	return c
}

func (e *testEnv) receive(t *testing.T, productID string, qty int64) {
	t.Helper()
	_, err := e.ledger.Append(context.Background(), models.MovementInput{
		ProductID: productID,
		Qty:       qty,
		From:      models.External(),
		To:        models.At(models.LocationPantry),
	})
	require.NoError(t, err)
}

func (e *testEnv) addToCart(t *testing.T, cartKey, productID string, qty int64) {
	t.Helper()
	_, err := e.carts.AddToCart(context.Background(), cartKey, AddToCartRequest{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

func (e *testEnv) onHand(t *testing.T, productID string) int64 {
	t.Helper()
	n, err := e.availability.OnHand(context.Background(), productID)
	require.NoError(t, err)
	return n
}

func (e *testEnv) orderMovements(t *testing.T, orderID int64) []models.Movement {
	t.Helper()
	movements, err := e.orders.OrderMovements(context.Background(), orderID)
	require.NoError(t, err)
	return movements
}
