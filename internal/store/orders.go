package store

import (
	"context"
	"fmt"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const orderColumns = `order_id, client_id, total_points, fulfillment_method, satellite_location,
	pickup_time, note_to_staff, status, idempotency_key, cancel_reason,
	created_at, updated_at, completed_at, cancelled_at`

// OrderFilter narrows ListOrders; zero fields match everything
type OrderFilter struct {
	ClientID string
	Status   models.OrderStatus
	Limit    int
}

// CreateOrder creates a new order with its snapshot lines
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now()
	}
	order.UpdatedAt = order.CreatedAt

	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.OrderID, order.ClientID, order.TotalPoints, string(order.FulfillmentMethod),
			order.SatelliteLocation, order.PickupTime, order.NoteToStaff, string(order.Status),
			order.IdempotencyKey, order.CancelReason, order.CreatedAt, order.UpdatedAt,
			order.CompletedAt, order.CancelledAt)
		if isUniqueViolation(err) {
			return apperror.Conflict("order already exists").With("order_id", order.OrderID)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("client", order.ClientID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range order.Items {
			item := &order.Items[i]
			item.OrderID = order.OrderID
			item.LineNo = i + 1
			if err := tx.createOrderItem(ctx, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) createOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := s.exec(ctx, `
		INSERT INTO order_items (order_id, line_no, product_id, quantity, points, category)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.OrderID, item.LineNo, item.ProductID, item.Quantity, item.Points, string(item.Category))
	if isForeignKeyViolation(err) {
		return apperror.NotFound("product", item.ProductID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order with its lines
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE order_id = ?", id)
	if isNoRows(err) {
		return nil, apperror.NotFound("order", fmt.Sprint(id))
	}
	if err != nil {
		return nil, err
	}

	orders := []models.Order{order}
	if err := s.attachOrderItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key; nil when unused
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE idempotency_key = ?", key)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	orders := []models.Order{order}
	if err := s.attachOrderItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ListOrders returns orders newest first
func (s *Store) ListOrders(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE 1 = 1"
	var args []any
	if filter.ClientID != "" {
		query += " AND client_id = ?"
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY order_id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	orders := []models.Order{}
	if err := s.selectAll(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	if err := s.attachOrderItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// TransitionOrder moves an order from one status to the next. The update is
// guarded on the current status so a concurrent transition makes it fail.
func (s *Store) TransitionOrder(ctx context.Context, order *models.Order, from models.OrderStatus) error {
	order.UpdatedAt = now()
	n, err := s.exec(ctx, `
		UPDATE orders SET status = ?, cancel_reason = ?, updated_at = ?, completed_at = ?, cancelled_at = ?
		WHERE order_id = ? AND status = ?`,
		string(order.Status), order.CancelReason, order.UpdatedAt, order.CompletedAt, order.CancelledAt,
		order.OrderID, string(from))
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if n == 0 {
		return apperror.New(apperror.CodeStateConflict, "order status changed concurrently").
			With("order_id", order.OrderID).
			With("expected_status", string(from))
	}
	return nil
}

// CountOrdersByStatus returns how many orders sit in each status
func (s *Store) CountOrdersByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	var rows []struct {
		Status models.OrderStatus `db:"status"`
		Count  int                `db:"n"`
	}
	if err := s.selectAll(ctx, &rows, "SELECT status, COUNT(*) AS n FROM orders GROUP BY status"); err != nil {
		return nil, err
	}
	counts := make(map[models.OrderStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// CountRows returns the size of one of the catalog tables
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	switch table {
	case "products", "locations", "clients", "movements":
	default:
		return 0, fmt.Errorf("count not supported for table %s", table)
	}
	var n int
	err := s.get(ctx, &n, "SELECT COUNT(*) FROM "+table)
	return n, err
}

func (s *Store) attachOrderItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.OrderID
	}

	query, args, err := sqlx.In(`
		SELECT order_id, line_no, product_id, quantity, points, category
		FROM order_items WHERE order_id IN (?) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}

	var items []models.OrderItem
	if err := s.selectAll(ctx, &items, query, args...); err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	byOrder := make(map[int64][]models.OrderItem, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].OrderID]
		if orders[i].Items == nil {
			orders[i].Items = []models.OrderItem{}
		}
	}
	return nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.exec(ctx,
		"INSERT INTO processed_events (event_id, event_type, processed_at) VALUES (?, ?, ?) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType, now())
	return err
}
