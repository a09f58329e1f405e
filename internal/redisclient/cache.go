package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pantry-service/internal/models"

	"github.com/go-redis/redis/v8"
)

func availabilityKey(productID string) string {
	return fmt.Sprintf("availability:%s", productID)
}

// SetAvailability caches a product's availability snapshot
func (c *Client) SetAvailability(ctx context.Context, a models.Availability, ttl time.Duration) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, availabilityKey(a.ProductID), data, ttl).Err()
}

// GetAvailability returns the cached snapshot; found is false on a miss
func (c *Client) GetAvailability(ctx context.Context, productID string) (a models.Availability, found bool, err error) {
	data, err := c.rdb.Get(ctx, availabilityKey(productID)).Bytes()
	if err == redis.Nil {
		return models.Availability{}, false, nil
	}
	if err != nil {
		return models.Availability{}, false, err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return models.Availability{}, false, fmt.Errorf("decode cached availability: %w", err)
	}
	return a, true, nil
}

// InvalidateAvailability drops cached snapshots for the given products
func (c *Client) InvalidateAvailability(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = availabilityKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
