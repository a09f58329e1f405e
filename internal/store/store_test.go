package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pantry-service/internal/apperror"
	"pantry-service/internal/ledger"
	"pantry-service/internal/models"
	"pantry-service/internal/store"
	"pantry-service/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apples() *models.Product {
	return &models.Product{
		ProductID:         "Apples",
		Price:             models.MustMoney("1.25"),
		PurchasePrice:     models.MustMoney("0.40"),
		Category:          models.CategoryFruits,
		Servings:          1,
		Points:            2,
		NutritionScore:    90,
		DietaryIndicators: models.NewTagSet(models.DietVegan, models.DietGlutenFree),
		Allergens:         models.NewTagSet(),
	}
}

func seedMovement(t *testing.T, s *store.Store, product string, qty int64, from, to models.Endpoint) models.Movement {
	t.Helper()
	ctx := context.Background()

	id, err := s.NextID(ctx, store.MainCounter)
	require.NoError(t, err)
	m := models.Movement{MovementID: id, ProductID: product, Qty: qty, From: from, To: to}
	require.NoError(t, s.InsertMovement(ctx, m))
	return m
}

func TestNextIDsStartAfterSeedAndNeverRepeat(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	first, err := s.NextID(ctx, store.MainCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(101), first)

	block, err := s.NextIDs(ctx, store.MainCounter, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{102, 103, 104}, block)

	// an id whose write is rolled back leaves a gap and is not handed out again
	require.NoError(t, s.CreateProduct(ctx, apples()))
	skipped, err := s.NextID(ctx, store.MainCounter)
	require.NoError(t, err)
	err = s.WithTx(ctx, func(tx *store.Store) error {
		m := models.Movement{MovementID: skipped, ProductID: "Apples", Qty: 1, To: models.At(models.LocationPantry)}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	_, err = s.GetMovement(ctx, skipped)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	next, err := s.NextID(ctx, store.MainCounter)
	require.NoError(t, err)
	assert.Equal(t, skipped+1, next)

	_, err = s.NextID(ctx, "missing")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	// seeding again keeps the current value
	require.NoError(t, s.EnsureCounter(ctx, store.MainCounter, storetest.CounterStart))
	value, err := s.CounterValue(ctx, store.MainCounter)
	require.NoError(t, err)
	assert.Equal(t, next, value)
}

func TestNextIDsUnderConcurrentCallers(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	const workers, perWorker = 10, 20
	results := make([][]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids, err := s.NextIDs(ctx, store.MainCounter, 1+i%3)
				if err != nil {
					errs[w] = err
					return
				}
				results[w] = append(results[w], ids...)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	total := 0
	for w := range results {
		require.NoError(t, errs[w])
		for i, id := range results[w] {
			assert.False(t, seen[id], "id %d handed out twice", id)
			seen[id] = true
			if i > 0 {
				assert.Greater(t, id, results[w][i-1])
			}
		}
		total += len(results[w])
	}

	value, err := s.CounterValue(ctx, store.MainCounter)
	require.NoError(t, err)
	assert.Equal(t, int64(storetest.CounterStart+total), value)
	for id := int64(storetest.CounterStart + 1); id <= value; id++ {
		assert.True(t, seen[id], "id %d skipped", id)
	}
}

func TestProductCRUDWithTags(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProduct(ctx, apples()))
	err := s.CreateProduct(ctx, apples())
	assert.True(t, apperror.Is(err, apperror.CodeConflict))

	got, err := s.GetProductByID(ctx, "Apples")
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, models.CategoryFruits, got.Category)
	assert.True(t, got.DietaryIndicators.HasAll(models.DietVegan, models.DietGlutenFree))
	assert.Empty(t, got.Allergens)

	got.Points = 3
	got.Allergens = models.NewTagSet(models.AllergenGluten)
	got.DietaryIndicators = models.NewTagSet(models.DietVegan)
	require.NoError(t, s.UpdateProduct(ctx, got))

	updated, err := s.GetProductByID(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Points)
	assert.True(t, updated.Allergens.Has(models.AllergenGluten))
	assert.False(t, updated.DietaryIndicators.Has(models.DietGlutenFree))

	fruits, err := s.GetProducts(ctx, models.CategoryFruits)
	require.NoError(t, err)
	assert.Len(t, fruits, 1)
	dairy, err := s.GetProducts(ctx, models.CategoryDairy)
	require.NoError(t, err)
	assert.Empty(t, dairy)

	byID, err := s.GetProductsByIDs(ctx, []string{"Apples", "Ghost"})
	require.NoError(t, err)
	assert.Len(t, byID, 1)

	_, err = s.GetProductByID(ctx, "Ghost")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestInsertMovementMaintainsBalances(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))

	seedMovement(t, s, "Apples", 50, models.External(), models.At(models.LocationPantry))
	seedMovement(t, s, "Apples", 5, models.At(models.LocationPantry), models.At(models.LocationReserved))

	balances, err := s.GetBalances(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{models.LocationPantry: 45, models.LocationReserved: 5}, balances)

	onHand, err := s.ShelfOnHand(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(45), onHand)

	movements, err := s.GetMovementsByProduct(ctx, "Apples")
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Less(t, movements[0].MovementID, movements[1].MovementID)
	assert.True(t, movements[0].From.IsExternal())
	assert.Equal(t, int64(45), ledger.OnHand(movements))
}

func TestInsertMovementRejectsUnknownReferences(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))

	err := s.InsertMovement(ctx, models.Movement{
		MovementID: 1, ProductID: "Apples", Qty: 1,
		From: models.External(), To: models.At("Basement"),
	})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidMovement))

	balances, err := s.GetBalances(ctx, "Apples")
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestWithTxRollsBackEverything(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))

	err := s.WithTx(ctx, func(tx *store.Store) error {
		m := models.Movement{MovementID: 900, ProductID: "Apples", Qty: 10, To: models.At(models.LocationPantry)}
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}
		return apperror.New(apperror.CodeInsufficientStock, "boom")
	})
	require.True(t, apperror.Is(err, apperror.CodeInsufficientStock))

	movements, err := s.GetMovementsByProduct(ctx, "Apples")
	require.NoError(t, err)
	assert.Empty(t, movements)
	balances, err := s.GetBalances(ctx, "Apples")
	require.NoError(t, err)
	assert.Empty(t, balances)
}

func TestRenameProductCascades(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))
	require.NoError(t, s.CreateClient(ctx, &models.Client{ClientID: "C00001", Name: "Ana", PointsPerVisit: 100}))

	seedMovement(t, s, "Apples", 50, models.External(), models.At(models.LocationPantry))
	require.NoError(t, s.CreateOrder(ctx, &models.Order{
		OrderID: 500, ClientID: "C00001", Status: models.OrderStatusPending,
		FulfillmentMethod: models.FulfillmentPickup,
		Items:             []models.OrderItem{{ProductID: "Apples", Quantity: 2, Points: 2, Category: models.CategoryFruits}},
	}))
	before, err := s.ShelfOnHand(ctx, "Apples")
	require.NoError(t, err)

	require.NoError(t, s.RenameProduct(ctx, "Apples", "Red Apples"))

	_, err = s.GetProductByID(ctx, "Apples")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
	renamed, err := s.GetProductByID(ctx, "Red Apples")
	require.NoError(t, err)
	assert.True(t, renamed.DietaryIndicators.Has(models.DietVegan))

	after, err := s.ShelfOnHand(ctx, "Red Apples")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	old, err := s.GetMovementsByProduct(ctx, "Apples")
	require.NoError(t, err)
	assert.Empty(t, old)

	order, err := s.GetOrderByID(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, "Red Apples", order.Items[0].ProductID)

	require.NoError(t, s.CreateProduct(ctx, apples()))
	err = s.RenameProduct(ctx, "Apples", "Red Apples")
	assert.True(t, apperror.Is(err, apperror.CodeConflict))
}

func TestRenameAndDeleteLocation(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))

	_, err := s.CreateLocation(ctx, "Warehouse")
	require.NoError(t, err)
	_, err = s.CreateLocation(ctx, "Warehouse")
	assert.True(t, apperror.Is(err, apperror.CodeConflict))

	seedMovement(t, s, "Apples", 20, models.External(), models.At("Warehouse"))
	seedMovement(t, s, "Apples", 5, models.At("Warehouse"), models.At(models.LocationPantry))

	require.NoError(t, s.RenameLocation(ctx, "Warehouse", "Back Room"))

	exists, err := s.LocationExists(ctx, "Warehouse")
	require.NoError(t, err)
	assert.False(t, exists)

	movements, err := s.ListMovements(ctx, store.MovementFilter{Location: "Back Room"})
	require.NoError(t, err)
	assert.Len(t, movements, 2)

	balances, err := s.GetBalances(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(15), balances["Back Room"])

	err = s.DeleteLocation(ctx, "Back Room")
	assert.True(t, apperror.Is(err, apperror.CodeConflict))

	_, err = s.CreateLocation(ctx, "Freezer")
	require.NoError(t, err)
	require.NoError(t, s.DeleteLocation(ctx, "Freezer"))
	err = s.DeleteLocation(ctx, "Freezer")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestDeleteProductWithHistoryConflicts(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))
	seedMovement(t, s, "Apples", 1, models.External(), models.At(models.LocationPantry))

	err := s.DeleteProduct(ctx, "Apples")
	assert.True(t, apperror.Is(err, apperror.CodeConflict))

	fresh := apples()
	fresh.ProductID = "Pears"
	require.NoError(t, s.CreateProduct(ctx, fresh))
	require.NoError(t, s.DeleteProduct(ctx, "Pears"))
	exists, err := s.ProductExists(ctx, "Pears")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestReplaceAndRemoveMovementMoveTheProjection(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))

	m := seedMovement(t, s, "Apples", 10, models.External(), models.At(models.LocationPantry))

	after := m
	after.Qty = 7
	require.NoError(t, s.ReplaceMovement(ctx, m, after))
	require.NoError(t, s.InsertCorrection(ctx, models.MovementCorrection{
		CorrectionID: 1, MovementID: m.MovementID, Action: models.CorrectionUpdate,
		Before: m, After: &after, Reason: "miscount", Actor: "staff",
	}))

	onHand, err := s.ShelfOnHand(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(7), onHand)

	require.NoError(t, s.RemoveMovement(ctx, after))
	onHand, err = s.ShelfOnHand(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(0), onHand)

	_, err = s.GetMovement(ctx, m.MovementID)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))

	corrections, err := s.GetCorrections(ctx, m.MovementID)
	require.NoError(t, err)
	require.Len(t, corrections, 1)
	assert.Equal(t, int64(10), corrections[0].Before.Qty)
	require.NotNil(t, corrections[0].After)
	assert.Equal(t, int64(7), corrections[0].After.Qty)
	assert.True(t, corrections[0].Before.From.IsExternal())
}

func TestStaleMovementWritesConflict(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))

	m := seedMovement(t, s, "Apples", 10, models.External(), models.At(models.LocationPantry))
	current := m
	current.Qty = 8
	require.NoError(t, s.ReplaceMovement(ctx, m, current))

	// m is now an outdated read of the row
	stale := m
	stale.Qty = 5
	err := s.ReplaceMovement(ctx, m, stale)
	assert.True(t, apperror.Is(err, apperror.CodeConflict), err)
	assert.True(t, apperror.Is(s.RemoveMovement(ctx, m), apperror.CodeConflict))

	onHand, err := s.ShelfOnHand(ctx, "Apples")
	require.NoError(t, err)
	assert.Equal(t, int64(8), onHand)

	got, err := s.GetMovement(ctx, m.MovementID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.Qty)

	require.NoError(t, s.RemoveMovement(ctx, current))
	assert.True(t, apperror.Is(s.RemoveMovement(ctx, current), apperror.CodeNotFound))
}

func TestRebuildBalancesMatchesLedger(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))

	seedMovement(t, s, "Apples", 30, models.External(), models.At(models.LocationPantry))
	seedMovement(t, s, "Apples", 4, models.At(models.LocationPantry), models.At(models.LocationReserved))
	seedMovement(t, s, "Apples", 4, models.At(models.LocationReserved), models.At(models.LocationCustomer))

	_, err := s.GetDB().ExecContext(ctx, "UPDATE stock_balances SET qty = 999")
	require.NoError(t, err)

	require.NoError(t, s.RebuildBalances(ctx))

	balances, err := s.GetBalances(ctx, "Apples")
	require.NoError(t, err)
	movements, err := s.GetMovementsByProduct(ctx, "Apples")
	require.NoError(t, err)

	replayed := ledger.Balances(movements)
	delete(replayed, models.LocationReserved)
	assert.Equal(t, replayed, balances)
}

func TestOrdersLifecycle(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProduct(ctx, apples()))
	require.NoError(t, s.CreateClient(ctx, &models.Client{
		ClientID: "C00001", Name: "Ana", PointsPerVisit: 100,
		Allergens: models.NewTagSet(models.AllergenPeanuts),
	}))

	key := "checkout-1"
	order := &models.Order{
		OrderID: 200, ClientID: "C00001", TotalPoints: 10,
		FulfillmentMethod: models.FulfillmentPickup, Status: models.OrderStatusPending,
		IdempotencyKey: &key,
		Items:          []models.OrderItem{{ProductID: "Apples", Quantity: 5, Points: 2, Category: models.CategoryFruits}},
	}
	require.NoError(t, s.CreateOrder(ctx, order))
	assert.Equal(t, 1, order.Items[0].LineNo)

	dup := *order
	dup.OrderID = 201
	err := s.CreateOrder(ctx, &dup)
	assert.True(t, apperror.Is(err, apperror.CodeConflict))

	found, err := s.GetOrderByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, int64(200), found.OrderID)
	assert.Len(t, found.Items, 1)

	missing, err := s.GetOrderByIdempotencyKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	order.Status = models.OrderStatusReady
	require.NoError(t, s.TransitionOrder(ctx, order, models.OrderStatusPending))

	// a second writer still expecting Pending loses
	err = s.TransitionOrder(ctx, order, models.OrderStatusPending)
	assert.True(t, apperror.Is(err, apperror.CodeStateConflict))

	pending, err := s.ListOrders(ctx, store.OrderFilter{Status: models.OrderStatusPending})
	require.NoError(t, err)
	assert.Empty(t, pending)

	mine, err := s.ListOrders(ctx, store.OrderFilter{ClientID: "C00001"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.OrderStatusReady, mine[0].Status)

	counts, err := s.CountOrdersByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.OrderStatusReady])

	client, err := s.GetClientByID(ctx, "C00001")
	require.NoError(t, err)
	assert.True(t, client.Allergens.Has(models.AllergenPeanuts))
	assert.Nil(t, client.LastVisit)
}

func TestProcessedEvents(t *testing.T) {
	s := storetest.New(t)
	ctx := context.Background()

	done, err := s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", models.EventTypeStockMoved))
	require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", models.EventTypeStockMoved))

	done, err = s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, done)
}
