package service

import (
	"context"
	"fmt"
	"time"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"
	"pantry-service/internal/redisclient"
	"pantry-service/internal/store"
	"pantry-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService turns carts into orders and drives them through fulfillment.
// Every state change writes its stock movements in the same transaction.
type OrderService struct {
	store        *store.Store
	redis        *redisclient.Client
	ids          *IDAllocator
	availability *AvailabilityService
	publisher    EventPublisher
	settings     Settings
	logger       *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	store *store.Store,
	redis *redisclient.Client,
	ids *IDAllocator,
	availability *AvailabilityService,
	publisher EventPublisher,
	settings Settings,
) *OrderService {
	return &OrderService{
		store:        store,
		redis:        redis,
		ids:          ids,
		availability: availability,
		publisher:    publisher,
		settings:     settings,
		logger:       util.GetLogger(),
	}
}

// CheckoutRequest represents a request to turn a cart into an order
type CheckoutRequest struct {
	CartKey           string                   `json:"cart_key" validate:"required"`
	ClientID          string                   `json:"client_id" validate:"required"`
	FulfillmentMethod models.FulfillmentMethod `json:"fulfillment_method" validate:"required,fulfillment"`
	SatelliteLocation string                   `json:"satellite_location,omitempty"`
	PickupTime        string                   `json:"pickup_time,omitempty" validate:"max=64"`
	NoteToStaff       string                   `json:"note_to_staff,omitempty" validate:"max=1000"`
	IdempotencyKey    string                   `json:"idempotency_key,omitempty" validate:"max=128"`
}

// placement describes where an order starts and where its stock goes
type placement struct {
	status models.OrderStatus
	to     string
}

var (
	reservePlacement = placement{status: models.OrderStatusPending, to: models.LocationReserved}
	kioskPlacement   = placement{status: models.OrderStatusCompleted, to: models.LocationCustomer}
)

// Checkout reserves the cart's stock and creates a Pending order. A reused
// idempotency key returns the order it created the first time.
func (s *OrderService) Checkout(ctx context.Context, req CheckoutRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Checkout",
		attribute.String("cart_key", req.CartKey),
		attribute.String("client_id", req.ClientID))
	defer span.End()

	if err := validateStruct(req); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}
	if req.FulfillmentMethod == models.FulfillmentSatellite {
		if req.SatelliteLocation == "" {
			util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
			return nil, apperror.Validation("satellite orders need a satellite location").
				With("satellite_location", "is required")
		}
		exists, err := s.store.LocationExists(ctx, req.SatelliteLocation)
		if err != nil {
			return nil, err
		}
		if !exists {
			util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
			return nil, apperror.Validation("unknown satellite location").
				With("satellite_location", req.SatelliteLocation)
		}
	} else {
		req.SatelliteLocation = ""
	}

	if req.IdempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("order_id", existing.OrderID))
			return existing, nil
		}
	}

	order, err := s.placeOrder(ctx, req, reservePlacement)
	if err != nil {
		util.RecordError(span, err)
		if req.IdempotencyKey != "" && apperror.Is(err, apperror.CodeConflict) {
			// a concurrent request with the same key won the insert
			existing, lookupErr := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return order, nil
}

// KioskCheckout records an in-person visit: the order is Completed at once
// and stock moves straight from Pantry to Customer.
func (s *OrderService) KioskCheckout(ctx context.Context, cartKey, clientID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.KioskCheckout",
		attribute.String("cart_key", cartKey),
		attribute.String("client_id", clientID))
	defer span.End()

	req := CheckoutRequest{
		CartKey:           cartKey,
		ClientID:          clientID,
		FulfillmentMethod: models.FulfillmentInPersonPickup,
	}
	if err := validateStruct(req); err != nil {
		util.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	order, err := s.placeOrder(ctx, req, kioskPlacement)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req CheckoutRequest, p placement) (*models.Order, error) {
	start := time.Now()

	token, ok, err := s.redis.AcquireLock(ctx, checkoutLockKey(req.CartKey), s.settings.CheckoutLockTTL)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeDependency, err, "failed to lock cart")
	}
	if !ok {
		util.CheckoutFailedTotal.WithLabelValues("concurrent").Inc()
		return nil, apperror.Conflict("checkout already in progress for this cart").
			With("cart_key", req.CartKey)
	}
	defer func() {
		if err := s.redis.ReleaseLock(context.Background(), checkoutLockKey(req.CartKey), token); err != nil {
			s.logger.Warn("Failed to release checkout lock",
				zap.String("cart_key", req.CartKey),
				zap.Error(err))
		}
	}()

	cart, err := s.redis.GetCart(ctx, req.CartKey)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeDependency, err, "failed to read cart")
	}
	if cart.IsEmpty() {
		util.CheckoutFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperror.Validation("cart is empty").With("cart_key", req.CartKey)
	}

	client, err := s.store.GetClientByID(ctx, req.ClientID)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("unknown_client").Inc()
		return nil, err
	}

	products, err := s.cartProducts(ctx, cart)
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("unknown_product").Inc()
		return nil, err
	}

	items := make([]models.OrderItem, len(cart.Lines))
	total := 0
	for i, line := range cart.Lines {
		product := products[line.ProductID]
		items[i] = models.OrderItem{
			ProductID: product.ProductID,
			Quantity:  line.Quantity,
			Points:    product.Points,
			Category:  product.Category,
		}
		total += items[i].LinePoints()
	}

	if s.settings.EnforcePointLimit && total > client.PointsPerVisit {
		util.CheckoutFailedTotal.WithLabelValues("point_limit").Inc()
		return nil, apperror.Validation("order exceeds the client's point limit").
			With("total_points", total).
			With("points_per_visit", client.PointsPerVisit)
	}

	ids, err := s.ids.NextIDs(ctx, len(items)+1)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate order ids: %w", err)
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:           ids[0],
		ClientID:          client.ClientID,
		TotalPoints:       total,
		FulfillmentMethod: req.FulfillmentMethod,
		SatelliteLocation: req.SatelliteLocation,
		PickupTime:        req.PickupTime,
		NoteToStaff:       req.NoteToStaff,
		Status:            p.status,
		CreatedAt:         now,
		Items:             items,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}
	if p.status == models.OrderStatusCompleted {
		order.CompletedAt = &now
	}

	movements := make([]models.Movement, len(items))
	for i, item := range items {
		product := products[item.ProductID]
		movements[i] = newMovement(ids[i+1], models.MovementInput{
			ProductID: item.ProductID,
			Qty:       item.Quantity,
			From:      models.At(models.LocationPantry),
			To:        models.At(p.to),
			OrderID:   &order.OrderID,
		}, &product, now)
	}

	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for _, m := range movements {
			if err := tx.InsertMovement(ctx, m); err != nil {
				return err
			}
		}
		if s.settings.EnforceStock {
			if err := checkStock(ctx, tx, items); err != nil {
				return err
			}
		}
		if p.status == models.OrderStatusCompleted {
			return tx.TouchLastVisit(ctx, client.ClientID, now)
		}
		return nil
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	if err := s.redis.ClearCart(ctx, req.CartKey); err != nil {
		s.logger.Warn("Failed to clear cart after checkout",
			zap.String("cart_key", req.CartKey),
			zap.Error(err))
	}

	method := string(order.FulfillmentMethod)
	util.OrdersPlacedTotal.WithLabelValues(method).Inc()
	util.CheckoutLatency.Observe(time.Since(start).Seconds())
	for _, m := range movements {
		util.MovementsAppendedTotal.WithLabelValues(movementKind(m)).Inc()
	}
	if p.status == models.OrderStatusCompleted {
		util.OrdersCompletedTotal.Inc()
	}

	s.logger.Info("Order placed",
		zap.Int64("order_id", order.OrderID),
		zap.String("client_id", order.ClientID),
		zap.String("status", string(order.Status)),
		zap.Int("total_points", order.TotalPoints),
		zap.Int("lines", len(order.Items)))

	s.publishOrderEvent(ctx, order, models.EventTypeOrderPlaced, "")
	if p.status == models.OrderStatusCompleted {
		s.publishOrderEvent(ctx, order, models.EventTypeOrderCompleted, "")
	}
	notifyStockMoved(ctx, s.availability, s.publisher, s.logger, movements, nil, &order.OrderID)
	return order, nil
}

// cartProducts loads the current catalog entry of every cart line
func (s *OrderService) cartProducts(ctx context.Context, cart models.Cart) (map[string]models.Product, error) {
	ids := make([]string, len(cart.Lines))
	for i, line := range cart.Lines {
		ids[i] = line.ProductID
	}
	products, err := s.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := products[id]; !ok {
			return nil, apperror.NotFound("product", id)
		}
	}
	return products, nil
}

// checkStock fails when any ordered product's shelf stock went negative
func checkStock(ctx context.Context, tx *store.Store, items []models.OrderItem) error {
	for _, item := range items {
		onHand, err := tx.ShelfOnHand(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if onHand < 0 {
			return apperror.New(apperror.CodeInsufficientStock, "not enough stock on hand").
				With("product_id", item.ProductID).
				With("requested", item.Quantity).
				With("available", onHand+item.Quantity)
		}
	}
	return nil
}

func failureReason(err error) string {
	switch apperror.CodeOf(err) {
	case apperror.CodeInsufficientStock:
		return "insufficient_stock"
	case apperror.CodeConflict:
		return "conflict"
	case apperror.CodeNotFound:
		return "not_found"
	case apperror.CodeValidation, apperror.CodeInvalidMovement:
		return "validation"
	}
	return "internal"
}

// MarkReady moves a Pending order to Ready
func (s *OrderService) MarkReady(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.MarkReady", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.loadForTransition(ctx, orderID, models.OrderStatusReady)
	if err != nil {
		return nil, err
	}

	from := order.Status
	order.Status = models.OrderStatusReady
	if err := s.store.TransitionOrder(ctx, order, from); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Order ready", zap.Int64("order_id", orderID))
	s.publishOrderEvent(ctx, order, models.EventTypeOrderReady, "")
	return order, nil
}

// Complete hands a Ready order to the client, consuming its reservation
func (s *OrderService) Complete(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Complete", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.loadForTransition(ctx, orderID, models.OrderStatusCompleted)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	from := order.Status
	order.Status = models.OrderStatusCompleted
	order.CompletedAt = &now

	movements, err := s.settle(ctx, order, from, models.LocationCustomer, now, func(tx *store.Store) error {
		return tx.TouchLastVisit(ctx, order.ClientID, now)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.OrdersCompletedTotal.Inc()
	s.logger.Info("Order completed",
		zap.Int64("order_id", orderID),
		zap.String("client_id", order.ClientID))

	s.publishOrderEvent(ctx, order, models.EventTypeOrderCompleted, "")
	notifyStockMoved(ctx, s.availability, s.publisher, s.logger, movements, nil, &order.OrderID)
	return order, nil
}

// Cancel aborts a Pending or Ready order and returns its reservation to Pantry
func (s *OrderService) Cancel(ctx context.Context, orderID int64, reason string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel", attribute.Int64("order_id", orderID))
	defer span.End()

	order, err := s.loadForTransition(ctx, orderID, models.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	from := order.Status
	order.Status = models.OrderStatusCancelled
	order.CancelledAt = &now
	order.CancelReason = reason

	movements, err := s.settle(ctx, order, from, models.LocationPantry, now, nil)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("reason", reason))

	s.publishOrderEvent(ctx, order, models.EventTypeOrderCancelled, reason)
	notifyStockMoved(ctx, s.availability, s.publisher, s.logger, movements, nil, &order.OrderID)
	return order, nil
}

// UpdateStatus dispatches a requested status to the matching transition
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus, reason string) (*models.Order, error) {
	switch status {
	case models.OrderStatusReady:
		return s.MarkReady(ctx, orderID)
	case models.OrderStatusCompleted:
		return s.Complete(ctx, orderID)
	case models.OrderStatusCancelled:
		return s.Cancel(ctx, orderID, reason)
	case models.OrderStatusPending:
		return nil, apperror.New(apperror.CodeStateConflict, "orders cannot return to Pending").
			With("order_id", orderID)
	}
	return nil, apperror.Validation("unknown order status").With("status", string(status))
}

// loadForTransition fetches an order and checks the state machine allows next
func (s *OrderService) loadForTransition(ctx context.Context, orderID int64, next models.OrderStatus) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(next) {
		return nil, apperror.Newf(apperror.CodeStateConflict, "cannot move order from %s to %s", order.Status, next).
			With("order_id", orderID).
			With("status", string(order.Status))
	}
	return order, nil
}

// settle moves every snapshot line out of Reserved to dest and records the
// new status, all in one transaction. Quantities come from the order lines
// and prices from the reservation movements.
func (s *OrderService) settle(
	ctx context.Context,
	order *models.Order,
	from models.OrderStatus,
	dest string,
	at time.Time,
	extra func(tx *store.Store) error,
) ([]models.Movement, error) {
	prices, err := s.reservationPrices(ctx, order.OrderID)
	if err != nil {
		return nil, err
	}

	ids, err := s.ids.NextIDs(ctx, len(order.Items))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate movement ids: %w", err)
	}

	movements := make([]models.Movement, len(order.Items))
	for i, item := range order.Items {
		movements[i] = models.Movement{
			MovementID: ids[i],
			ProductID:  item.ProductID,
			Qty:        item.Quantity,
			From:       models.At(models.LocationReserved),
			To:         models.At(dest),
			Price:      prices[item.ProductID],
			OrderID:    &order.OrderID,
			MovedAt:    at,
		}
	}

	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.TransitionOrder(ctx, order, from); err != nil {
			return err
		}
		for _, m := range movements {
			if err := tx.InsertMovement(ctx, m); err != nil {
				return err
			}
		}
		if extra != nil {
			return extra(tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, m := range movements {
		util.MovementsAppendedTotal.WithLabelValues(movementKind(m)).Inc()
	}
	return movements, nil
}

// reservationPrices returns the price snapshot taken when each product of
// the order was reserved
func (s *OrderService) reservationPrices(ctx context.Context, orderID int64) (map[string]models.Money, error) {
	reserved, err := s.store.ListMovements(ctx, store.MovementFilter{
		OrderID:    &orderID,
		ToLocation: models.LocationReserved,
	})
	if err != nil {
		return nil, err
	}
	prices := make(map[string]models.Money, len(reserved))
	for _, m := range reserved {
		if _, ok := prices[m.ProductID]; !ok {
			prices[m.ProductID] = m.Price
		}
	}
	return prices, nil
}

// GetOrder retrieves an order with its lines
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, orderID)
}

// ListOrders lists orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, filter store.OrderFilter) ([]models.Order, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperror.Validation("unknown order status").With("status", string(filter.Status))
	}
	return s.store.ListOrders(ctx, filter)
}

// ClientOrders lists one client's orders, newest first
func (s *OrderService) ClientOrders(ctx context.Context, clientID string) ([]models.Order, error) {
	if _, err := s.store.GetClientByID(ctx, clientID); err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx, store.OrderFilter{ClientID: clientID})
}

// OrderMovements lists the ledger entries written for an order
func (s *OrderService) OrderMovements(ctx context.Context, orderID int64) ([]models.Movement, error) {
	if _, err := s.store.GetOrderByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.store.ListMovements(ctx, store.MovementFilter{OrderID: &orderID})
}

func (s *OrderService) publishOrderEvent(ctx context.Context, order *models.Order, eventType, reason string) {
	event := &models.OrderEvent{
		BaseEvent:         newBaseEvent(eventType),
		OrderID:           order.OrderID,
		ClientID:          order.ClientID,
		Status:            order.Status,
		FulfillmentMethod: order.FulfillmentMethod,
		TotalPoints:       order.TotalPoints,
		Items:             models.ItemData(order.Items),
		Reason:            reason,
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.Int64("order_id", order.OrderID),
			zap.Error(err))
	}
}
