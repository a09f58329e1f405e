package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pantry-service/internal/models"

	"github.com/go-redis/redis/v8"
)

type cartKeys struct {
	qty   string
	meta  string
	order string
}

func keysFor(cartKey string) cartKeys {
	base := fmt.Sprintf("cart:{%s}", cartKey)
	return cartKeys{qty: base + ":qty", meta: base + ":meta", order: base + ":order"}
}

// keysFromQty recovers a cart's key set from its quantity hash key
func keysFromQty(qtyKey string) cartKeys {
	base := strings.TrimSuffix(qtyKey, ":qty")
	return cartKeys{qty: qtyKey, meta: base + ":meta", order: base + ":order"}
}

func (k cartKeys) list() []string {
	return []string{k.qty, k.meta, k.order}
}

type lineMeta struct {
	Points   int             `json:"points"`
	Category models.Category `json:"category"`
}

// AddToCart merges line into the cart atomically and returns the line's new
// quantity. New products go to the end of the cart.
func (c *Client) AddToCart(ctx context.Context, cartKey string, line models.CartLine, ttl time.Duration) (int64, error) {
	meta, err := json.Marshal(lineMeta{Points: line.Points, Category: line.Category})
	if err != nil {
		return 0, err
	}

	keys := keysFor(cartKey)
	result, err := c.addScript.Run(ctx, c.rdb, keys.list(),
		line.ProductID, line.Quantity, string(meta), int64(ttl/time.Second)).Result()
	if err != nil {
		return 0, fmt.Errorf("cart add script failed: %w", err)
	}

	qty, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected script result type")
	}
	return qty, nil
}

// RemoveFromCart drops a product's line; it reports whether a line existed
func (c *Client) RemoveFromCart(ctx context.Context, cartKey, productID string) (bool, error) {
	result, err := c.removeScript.Run(ctx, c.rdb, keysFor(cartKey).list(), productID).Result()
	if err != nil {
		return false, fmt.Errorf("cart remove script failed: %w", err)
	}
	removed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}
	return removed > 0, nil
}

// GetCart reads the cart lines in insertion order. A missing cart is empty.
func (c *Client) GetCart(ctx context.Context, cartKey string) (models.Cart, error) {
	keys := keysFor(cartKey)

	pipe := c.rdb.Pipeline()
	orderCmd := pipe.LRange(ctx, keys.order, 0, -1)
	qtyCmd := pipe.HGetAll(ctx, keys.qty)
	metaCmd := pipe.HGetAll(ctx, keys.meta)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return models.Cart{}, fmt.Errorf("read cart %s: %w", cartKey, err)
	}

	cart := models.Cart{Key: cartKey, Lines: []models.CartLine{}}
	quantities := qtyCmd.Val()
	metas := metaCmd.Val()
	for _, productID := range orderCmd.Val() {
		raw, ok := quantities[productID]
		if !ok {
			continue
		}
		qty, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Cart{}, fmt.Errorf("corrupt cart quantity for %s: %w", productID, err)
		}

		line := models.CartLine{ProductID: productID, Quantity: qty}
		var meta lineMeta
		if data, ok := metas[productID]; ok && json.Unmarshal([]byte(data), &meta) == nil {
			line.Points = meta.Points
			line.Category = meta.Category
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, nil
}

// ClearCart removes the whole cart
func (c *Client) ClearCart(ctx context.Context, cartKey string) error {
	return c.rdb.Del(ctx, keysFor(cartKey).list()...).Err()
}

// RenameProductInCarts moves every cart line for oldID to newID, keeping the
// line's position, and returns how many carts changed. A cart that already
// holds newID gets the quantities merged. Carts are found with SCAN, so a
// cart written while the rename runs can be missed.
func (c *Client) RenameProductInCarts(ctx context.Context, oldID, newID string) (int, error) {
	renamed := 0
	iter := c.rdb.Scan(ctx, 0, "cart:{*}:qty", 100).Iterator()
	for iter.Next(ctx) {
		result, err := c.renameScript.Run(ctx, c.rdb, keysFromQty(iter.Val()).list(), oldID, newID).Result()
		if err != nil {
			return renamed, fmt.Errorf("cart rename script failed: %w", err)
		}
		if n, ok := result.(int64); ok && n > 0 {
			renamed++
		}
	}
	if err := iter.Err(); err != nil {
		return renamed, fmt.Errorf("scan carts: %w", err)
	}
	return renamed, nil
}
