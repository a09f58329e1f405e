package service

import (
	"context"
	"fmt"
	"strings"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"
	"pantry-service/internal/redisclient"
	"pantry-service/internal/store"
	"pantry-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CatalogService manages products, locations and clients
type CatalogService struct {
	store        *store.Store
	redis        *redisclient.Client
	ids          *IDAllocator
	availability *AvailabilityService
	settings     Settings
	logger       *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(
	store *store.Store,
	redis *redisclient.Client,
	ids *IDAllocator,
	availability *AvailabilityService,
	settings Settings,
) *CatalogService {
	return &CatalogService{
		store:        store,
		redis:        redis,
		ids:          ids,
		availability: availability,
		settings:     settings,
		logger:       util.GetLogger(),
	}
}

// ProductInput is the editable part of a product. Prices arrive as text with
// exactly two decimals.
type ProductInput struct {
	ProductID         string          `json:"product_id" validate:"required,max=120"`
	Price             string          `json:"price" validate:"omitempty,price"`
	PurchasePrice     string          `json:"purchase_price" validate:"omitempty,price"`
	Category          models.Category `json:"category" validate:"required,category"`
	Description       string          `json:"description" validate:"max=2000"`
	UPC               string          `json:"upc" validate:"max=64"`
	Servings          int             `json:"servings" validate:"min=1"`
	Points            int             `json:"points" validate:"min=0"`
	NutritionScore    int             `json:"nutrition_score" validate:"min=0,max=100"`
	ImageURL          string          `json:"image_url" validate:"omitempty,max=500"`
	DietaryIndicators []models.Tag    `json:"dietary_indicators"`
	Allergens         []models.Tag    `json:"allergens"`
}

func (in ProductInput) toProduct() (*models.Product, error) {
	in.ProductID = strings.TrimSpace(in.ProductID)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	price, err := parsePrice("price", in.Price)
	if err != nil {
		return nil, err
	}
	purchase, err := parsePrice("purchase_price", in.PurchasePrice)
	if err != nil {
		return nil, err
	}
	dietary, err := tagSet("dietary_indicators", models.TagKindDietary, in.DietaryIndicators)
	if err != nil {
		return nil, err
	}
	allergens, err := tagSet("allergens", models.TagKindAllergen, in.Allergens)
	if err != nil {
		return nil, err
	}

	return &models.Product{
		ProductID:         in.ProductID,
		Price:             models.NewMoney(price),
		PurchasePrice:     models.NewMoney(purchase),
		Category:          in.Category,
		Description:       in.Description,
		UPC:               in.UPC,
		Servings:          in.Servings,
		Points:            in.Points,
		NutritionScore:    in.NutritionScore,
		ImageURL:          in.ImageURL,
		DietaryIndicators: dietary,
		Allergens:         allergens,
	}, nil
}

// CreateProduct adds a product to the catalog
func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateProduct")
	defer span.End()

	product, err := in.toProduct()
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Product created", zap.String("product_id", product.ProductID))
	return product, nil
}

// GetProduct retrieves a product
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	return s.store.GetProductByID(ctx, id)
}

// ListProducts lists products, all of them when category is empty
func (s *CatalogService) ListProducts(ctx context.Context, category models.Category) ([]models.Product, error) {
	if category != "" && !category.IsValid() {
		return nil, apperror.Validation("unknown category").With("category", category)
	}
	return s.store.GetProducts(ctx, category)
}

// UpdateProduct overwrites a product. A different product_id in the input
// renames the product, carrying every ledger entry and order line along.
func (s *CatalogService) UpdateProduct(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateProduct", attribute.String("product_id", id))
	defer span.End()

	product, err := in.toProduct()
	if err != nil {
		return nil, err
	}

	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if product.ProductID != id {
			if err := tx.RenameProduct(ctx, id, product.ProductID); err != nil {
				return err
			}
		}
		return tx.UpdateProduct(ctx, product)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	if product.ProductID != id {
		s.logger.Info("Product renamed",
			zap.String("from", id),
			zap.String("to", product.ProductID))
		s.renameInCarts(ctx, id, product.ProductID)
	}
	s.availability.Invalidate(ctx, id, product.ProductID)
	return s.store.GetProductByID(ctx, product.ProductID)
}

// RenameProduct changes a product's key and cascades it everywhere
func (s *CatalogService) RenameProduct(ctx context.Context, oldID, newID string) error {
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return apperror.Validation("new product id is required")
	}
	if oldID == newID {
		return nil
	}
	if err := s.store.RenameProduct(ctx, oldID, newID); err != nil {
		return err
	}
	s.logger.Info("Product renamed", zap.String("from", oldID), zap.String("to", newID))
	s.availability.Invalidate(ctx, oldID, newID)
	s.renameInCarts(ctx, oldID, newID)
	return nil
}

// renameInCarts points open cart lines at the new product key. The rename is
// already committed, so a Redis failure is logged rather than returned.
func (s *CatalogService) renameInCarts(ctx context.Context, oldID, newID string) {
	carts, err := s.redis.RenameProductInCarts(ctx, oldID, newID)
	if err != nil {
		s.logger.Warn("Failed to rename product in carts",
			zap.String("from", oldID),
			zap.String("to", newID),
			zap.Error(err))
		return
	}
	if carts > 0 {
		s.logger.Info("Carts updated for renamed product",
			zap.String("to", newID),
			zap.Int("carts", carts))
	}
}

// DeleteProduct removes a product without ledger history
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Product deleted", zap.String("product_id", id))
	s.availability.Invalidate(ctx, id)
	return nil
}

// ProductKeyAvailable reports whether a new product could use key
func (s *CatalogService) ProductKeyAvailable(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	exists, err := s.store.ProductExists(ctx, key)
	return !exists, err
}

// EnsureSystemLocations creates Pantry, Reserved and Customer if missing
func (s *CatalogService) EnsureSystemLocations(ctx context.Context) error {
	for _, loc := range models.SystemLocations {
		if err := s.store.EnsureLocation(ctx, loc, true); err != nil {
			return err
		}
	}
	return nil
}

// CreateLocation adds a staff-defined location
func (s *CatalogService) CreateLocation(ctx context.Context, id string) (*models.Location, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.Validation("location id is required")
	}
	loc, err := s.store.CreateLocation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Location created", zap.String("location_id", id))
	return loc, nil
}

// ListLocations lists every location
func (s *CatalogService) ListLocations(ctx context.Context) ([]models.Location, error) {
	return s.store.GetLocations(ctx)
}

// RenameLocation changes a location's key and cascades it through the ledger
func (s *CatalogService) RenameLocation(ctx context.Context, oldID, newID string) error {
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return apperror.Validation("new location id is required")
	}
	if models.IsSystemLocation(oldID) {
		return apperror.Conflict("system locations cannot be renamed").With("location_id", oldID)
	}
	if oldID == newID {
		return nil
	}

	affected, err := s.productsAt(ctx, oldID)
	if err != nil {
		return err
	}
	if err := s.store.RenameLocation(ctx, oldID, newID); err != nil {
		return err
	}

	s.logger.Info("Location renamed", zap.String("from", oldID), zap.String("to", newID))
	s.availability.Invalidate(ctx, affected...)
	return nil
}

// DeleteLocation removes a location that no movement references
func (s *CatalogService) DeleteLocation(ctx context.Context, id string) error {
	if models.IsSystemLocation(id) {
		return apperror.Conflict("system locations cannot be deleted").With("location_id", id)
	}
	if err := s.store.DeleteLocation(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Location deleted", zap.String("location_id", id))
	return nil
}

// LocationKeyAvailable reports whether a new location could use key
func (s *CatalogService) LocationKeyAvailable(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	exists, err := s.store.LocationExists(ctx, key)
	return !exists, err
}

func (s *CatalogService) productsAt(ctx context.Context, location string) ([]string, error) {
	movements, err := s.store.ListMovements(ctx, store.MovementFilter{Location: location})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var products []string
	for _, m := range movements {
		if _, ok := seen[m.ProductID]; !ok {
			seen[m.ProductID] = struct{}{}
			products = append(products, m.ProductID)
		}
	}
	return products, nil
}

// ClientInput is the editable part of a client profile
type ClientInput struct {
	Name            string       `json:"name" validate:"required,max=200"`
	Email           string       `json:"email" validate:"omitempty,email"`
	Phone           string       `json:"phone" validate:"max=40"`
	Address         string       `json:"address" validate:"max=500"`
	HouseholdSize   int          `json:"household_size" validate:"min=0"`
	Language        string       `json:"language" validate:"max=40"`
	PointsPerVisit  int          `json:"points_per_visit" validate:"min=0"`
	VisitsPerPeriod int          `json:"visits_per_period" validate:"min=0"`
	Allergens       []models.Tag `json:"allergens"`
	DietaryPrefs    []models.Tag `json:"dietary_prefs"`

	// EligibilityGroups is free-form; entries are trimmed
	EligibilityGroups []string `json:"eligibility_groups" validate:"dive,max=100"`
}

func (in ClientInput) apply(client *models.Client, defaultPoints int) error {
	if err := validateStruct(in); err != nil {
		return err
	}
	allergens, err := tagSet("allergens", models.TagKindAllergen, in.Allergens)
	if err != nil {
		return err
	}
	prefs, err := tagSet("dietary_prefs", models.TagKindDietary, in.DietaryPrefs)
	if err != nil {
		return err
	}
	groups := make([]models.Tag, len(in.EligibilityGroups))
	for i, g := range in.EligibilityGroups {
		groups[i] = models.Tag(strings.TrimSpace(g))
	}
	eligibility, err := tagSet("eligibility_groups", models.TagKindEligibility, groups)
	if err != nil {
		return err
	}

	client.Name = strings.TrimSpace(in.Name)
	client.Email = in.Email
	client.Phone = in.Phone
	client.Address = in.Address
	client.HouseholdSize = in.HouseholdSize
	client.Language = in.Language
	client.PointsPerVisit = in.PointsPerVisit
	if client.PointsPerVisit == 0 {
		client.PointsPerVisit = defaultPoints
	}
	client.VisitsPerPeriod = in.VisitsPerPeriod
	client.Allergens = allergens
	client.DietaryPrefs = prefs
	client.EligibilityGroups = eligibility
	return nil
}

// CreateClient registers a client under a fresh C-number
func (s *CatalogService) CreateClient(ctx context.Context, in ClientInput) (*models.Client, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateClient")
	defer span.End()

	client := &models.Client{}
	if err := in.apply(client, s.settings.DefaultPointsPerVisit); err != nil {
		return nil, err
	}

	id, err := s.ids.NextClientID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate client id: %w", err)
	}
	client.ClientID = id

	if err := s.store.CreateClient(ctx, client); err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	s.logger.Info("Client created", zap.String("client_id", client.ClientID))
	return client, nil
}

// GetClient retrieves a client
func (s *CatalogService) GetClient(ctx context.Context, id string) (*models.Client, error) {
	return s.store.GetClientByID(ctx, id)
}

// ListClients lists every client
func (s *CatalogService) ListClients(ctx context.Context) ([]models.Client, error) {
	return s.store.GetClients(ctx)
}

// UpdateClient overwrites a client's profile
func (s *CatalogService) UpdateClient(ctx context.Context, id string, in ClientInput) (*models.Client, error) {
	client, err := s.store.GetClientByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := in.apply(client, s.settings.DefaultPointsPerVisit); err != nil {
		return nil, err
	}
	if err := s.store.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}
