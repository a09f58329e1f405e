package models

import "time"

// Event types
const (
	EventTypeOrderPlaced    = "ORDER_PLACED"
	EventTypeOrderReady     = "ORDER_READY"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeStockMoved     = "STOCK_MOVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published on every order state change
type OrderEvent struct {
	BaseEvent
	OrderID           int64             `json:"order_id"`
	ClientID          string            `json:"client_id"`
	Status            OrderStatus       `json:"status"`
	FulfillmentMethod FulfillmentMethod `json:"fulfillment_method"`
	TotalPoints       int               `json:"total_points"`
	Items             []OrderItemData   `json:"items"`
	Reason            string            `json:"reason,omitempty"`
}

// StockMovedEvent is published after movements commit, one per product touched
type StockMovedEvent struct {
	BaseEvent
	ProductID   string  `json:"product_id"`
	MovementIDs []int64 `json:"movement_ids"`
	OrderID     *int64  `json:"order_id,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Points    int    `json:"points"`
}

// ItemData converts order lines for event payloads
func ItemData(items []OrderItem) []OrderItemData {
	data := make([]OrderItemData, 0, len(items))
	for _, item := range items {
		data = append(data, OrderItemData{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Points:    item.Points,
		})
	}
	return data
}
