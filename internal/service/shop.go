package service

import (
	"context"
	"sort"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"
	"pantry-service/internal/store"
	"pantry-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ShopService builds the shopper-facing product listings
type ShopService struct {
	store        *store.Store
	availability *AvailabilityService
	settings     Settings
	logger       *zap.Logger
}

// NewShopService creates a new shop service
func NewShopService(store *store.Store, availability *AvailabilityService, settings Settings) *ShopService {
	return &ShopService{
		store:        store,
		availability: availability,
		settings:     settings,
		logger:       util.GetLogger(),
	}
}

// ShopItem is a product with the quantity a shopper can take
type ShopItem struct {
	models.Product
	Available int64 `json:"available"`
}

// ShopCategory lists the in-stock products of a category that carry every
// requested dietary indicator, best nutrition score first. With a client and
// allergen exclusion switched on, products sharing an allergen with the
// client are left out.
func (s *ShopService) ShopCategory(ctx context.Context, clientID string, category models.Category, dietFilters []models.Tag) ([]ShopItem, error) {
	ctx, span := util.StartSpan(ctx, "ShopService.ShopCategory",
		attribute.String("category", string(category)))
	defer span.End()

	if !category.IsValid() {
		return nil, apperror.Validation("unknown category").With("category", string(category))
	}
	filters, err := tagSet("diet", models.TagKindDietary, dietFilters)
	if err != nil {
		return nil, err
	}

	var excluded models.TagSet
	if clientID != "" {
		client, err := s.store.GetClientByID(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if s.settings.ExcludeClientAllergens {
			excluded = client.Allergens
		}
	}

	products, err := s.store.GetProducts(ctx, category)
	if err != nil {
		return nil, err
	}

	items := make([]ShopItem, 0, len(products))
	for _, product := range products {
		if !product.DietaryIndicators.HasAll(filters.Sorted()...) {
			continue
		}
		if product.Allergens.Intersects(excluded) {
			continue
		}
		snapshot, err := s.availability.Cached(ctx, product.ProductID)
		if err != nil {
			util.RecordError(span, err)
			return nil, err
		}
		if snapshot.OnHand <= 0 {
			continue
		}
		items = append(items, ShopItem{Product: product, Available: snapshot.OnHand})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].NutritionScore != items[j].NutritionScore {
			return items[i].NutritionScore > items[j].NutritionScore
		}
		return items[i].ProductID < items[j].ProductID
	})
	return items, nil
}
