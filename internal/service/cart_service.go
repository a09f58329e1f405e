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

// CartService keeps shopper carts in Redis. A cart is addressed by an opaque
// key chosen by the caller, usually the session id.
type CartService struct {
	store    *store.Store
	redis    *redisclient.Client
	settings Settings
	logger   *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store *store.Store, redis *redisclient.Client, settings Settings) *CartService {
	return &CartService{
		store:    store,
		redis:    redis,
		settings: settings,
		logger:   util.GetLogger(),
	}
}

// AddToCartRequest is one add-to-cart click
type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"min=1"`
}

// AddToCart merges a line into the cart and returns the cart afterwards.
// Point cost and category are copied from the catalog at add time.
func (s *CartService) AddToCart(ctx context.Context, cartKey string, req AddToCartRequest) (models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart",
		attribute.String("cart_key", cartKey),
		attribute.String("product_id", req.ProductID))
	defer span.End()

	if err := requireCartKey(cartKey); err != nil {
		return models.Cart{}, err
	}
	if err := validateStruct(req); err != nil {
		return models.Cart{}, err
	}

	product, err := s.store.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return models.Cart{}, err
	}

	line := models.CartLine{
		ProductID: product.ProductID,
		Quantity:  req.Quantity,
		Points:    product.Points,
		Category:  product.Category,
	}
	if _, err := s.redis.AddToCart(ctx, cartKey, line, s.settings.CartTTL); err != nil {
		util.RecordError(span, err)
		return models.Cart{}, apperror.Wrap(apperror.CodeDependency, err, "failed to update cart")
	}

	s.logger.Debug("Added to cart",
		zap.String("cart_key", cartKey),
		zap.String("product_id", line.ProductID),
		zap.Int64("quantity", line.Quantity))
	return s.GetCart(ctx, cartKey)
}

// RemoveFromCart drops a product from the cart; removing an absent line is a no-op
func (s *CartService) RemoveFromCart(ctx context.Context, cartKey, productID string) (models.Cart, error) {
	if err := requireCartKey(cartKey); err != nil {
		return models.Cart{}, err
	}
	if _, err := s.redis.RemoveFromCart(ctx, cartKey, productID); err != nil {
		return models.Cart{}, apperror.Wrap(apperror.CodeDependency, err, "failed to update cart")
	}
	return s.GetCart(ctx, cartKey)
}

// GetCart returns the cart, empty when it never existed or expired
func (s *CartService) GetCart(ctx context.Context, cartKey string) (models.Cart, error) {
	if err := requireCartKey(cartKey); err != nil {
		return models.Cart{}, err
	}
	cart, err := s.redis.GetCart(ctx, cartKey)
	if err != nil {
		return models.Cart{}, apperror.Wrap(apperror.CodeDependency, err, "failed to read cart")
	}
	return cart, nil
}

// ClearCart empties the cart
func (s *CartService) ClearCart(ctx context.Context, cartKey string) error {
	if err := requireCartKey(cartKey); err != nil {
		return err
	}
	if err := s.redis.ClearCart(ctx, cartKey); err != nil {
		return apperror.Wrap(apperror.CodeDependency, err, "failed to clear cart")
	}
	return nil
}

// Summary is the cart with the client's point budget and MyPlate breakdown.
// Without a client the default budget applies.
func (s *CartService) Summary(ctx context.Context, cartKey, clientID string) (models.CartSummary, error) {
	cart, err := s.GetCart(ctx, cartKey)
	if err != nil {
		return models.CartSummary{}, err
	}

	budget := s.settings.DefaultPointsPerVisit
	if clientID != "" {
		client, err := s.store.GetClientByID(ctx, clientID)
		if err != nil {
			return models.CartSummary{}, err
		}
		budget = client.PointsPerVisit
	}

	used := cart.TotalPoints()
	return models.CartSummary{
		Cart:            cart,
		PointsUsed:      used,
		PointsRemaining: budget - used,
		PointsPerVisit:  budget,
		MyPlatePoints:   cart.PointsByCategory(),
	}, nil
}

func requireCartKey(cartKey string) error {
	if strings.TrimSpace(cartKey) == "" {
		return apperror.Validation("cart key is required")
	}
	return nil
}

func checkoutLockKey(cartKey string) string {
	return fmt.Sprintf("checkout:%s", cartKey)
}
