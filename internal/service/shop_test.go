package service

import (
	"context"
	"testing"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedShop(t *testing.T, env *testEnv) *models.Client {
	t.Helper()

	env.product(t, "Apples", 1, func(in *ProductInput) {
		in.NutritionScore = 90
		in.DietaryIndicators = []models.Tag{models.DietVegan, models.DietGlutenFree}
	})
	env.product(t, "Pears", 1, func(in *ProductInput) {
		in.NutritionScore = 70
		in.DietaryIndicators = []models.Tag{models.DietVegan}
	})
	env.product(t, "Fruit Nut Mix", 1, func(in *ProductInput) {
		in.NutritionScore = 80
		in.DietaryIndicators = []models.Tag{models.DietVegan}
		in.Allergens = []models.Tag{models.AllergenTreeNuts}
	})
	env.product(t, "Bananas", 1, func(in *ProductInput) { in.NutritionScore = 95 })
	env.product(t, "Milk", 1, func(in *ProductInput) { in.Category = models.CategoryDairy })

	for _, id := range []string{"Apples", "Pears", "Fruit Nut Mix", "Milk"} {
		env.receive(t, id, 10)
	}

	c, err := env.catalog.CreateClient(context.Background(), ClientInput{
		Name:      "Nut Allergy",
		Allergens: []models.Tag{models.AllergenTreeNuts},
	})
	require.NoError(t, err)
	return c
}

func productIDs(items []ShopItem) []string {
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}
	return ids
}

func TestShopCategory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := seedShop(t, env)

	items, err := env.shop.ShopCategory(ctx, client.ClientID, models.CategoryFruits, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apples", "Fruit Nut Mix", "Pears"}, productIDs(items))
	assert.Equal(t, int64(10), items[0].Available)

	items, err = env.shop.ShopCategory(ctx, "", models.CategoryFruits, []models.Tag{models.DietVegan, models.DietGlutenFree})
	require.NoError(t, err)
	assert.Equal(t, []string{"Apples"}, productIDs(items))

	_, err = env.shop.ShopCategory(ctx, "", "Candy", nil)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	_, err = env.shop.ShopCategory(ctx, "", models.CategoryFruits, []models.Tag{"paleo"})
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	_, err = env.shop.ShopCategory(ctx, "C99999", models.CategoryFruits, nil)
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestShopCategoryExcludesClientAllergens(t *testing.T) {
	env := newTestEnv(t, func(s *Settings) { s.ExcludeClientAllergens = true })
	ctx := context.Background()
	client := seedShop(t, env)

	items, err := env.shop.ShopCategory(ctx, client.ClientID, models.CategoryFruits, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Apples", "Pears"}, productIDs(items))

	// without a client nothing is excluded
	items, err = env.shop.ShopCategory(ctx, "", models.CategoryFruits, nil)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}
