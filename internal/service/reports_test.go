package service

import (
	"context"
	"testing"

	"pantry-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevenueUsesMovementPriceForSales(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.product(t, "Apples", 1)
	client := env.client(t, 100)
	env.receive(t, "Apples", 20)
	env.addToCart(t, "k", "Apples", 4)
	_, err := env.orders.KioskCheckout(ctx, "k", client.ClientID)
	require.NoError(t, err)

	report, err := env.reports.Revenue(ctx)
	require.NoError(t, err)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, int64(4), report.TotalQuantity)
	assert.Equal(t, "6.00", report.TotalSales.Fixed())
	assert.Equal(t, "2.00", report.TotalMargin.Fixed())

	_, err = env.catalog.UpdateProduct(ctx, "Apples", ProductInput{
		ProductID:     "Apples",
		Price:         "2.00",
		PurchasePrice: "1.00",
		Category:      models.CategoryFruits,
		Servings:      1,
		Points:        1,
	})
	require.NoError(t, err)

	report, err = env.reports.Revenue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "6.00", report.TotalSales.Fixed())
	assert.Equal(t, "4.00", report.TotalMargin.Fixed())
}

func TestBalanceReportCoversEveryProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)
	env.product(t, "Milk", 1)
	env.receive(t, "Apples", 5)
	env.receive(t, "Milk", 2)

	report, err := env.reports.BalanceReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]map[string]int64{
		"Apples": {models.LocationPantry: 5},
		"Milk":   {models.LocationPantry: 2},
	}, report)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.product(t, "Apples", 1)
	client := env.client(t, 100)
	env.receive(t, "Apples", 5)
	env.addToCart(t, "s1", "Apples", 1)
	_, err := env.orders.Checkout(ctx, checkout("s1", client.ClientID))
	require.NoError(t, err)

	d, err := env.reports.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Products)
	assert.Equal(t, 3, d.Locations)
	assert.Equal(t, 1, d.Clients)
	assert.Equal(t, 2, d.Movements)
	assert.Equal(t, 1, d.PendingOrders)
	require.Len(t, d.RecentOrders, 1)
	assert.Equal(t, client.ClientID, d.RecentOrders[0].ClientID)
}
