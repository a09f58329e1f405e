package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/cart_add.lua
var cartAddScript string

//go:embed scripts/cart_remove.lua
var cartRemoveScript string

//go:embed scripts/cart_rename.lua
var cartRenameScript string

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	addScript     *redis.Script
	removeScript  *redis.Script
	renameScript  *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return Wrap(rdb), nil
}

// Wrap builds a Client around an existing connection
func Wrap(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		addScript:     redis.NewScript(cartAddScript),
		removeScript:  redis.NewScript(cartRemoveScript),
		renameScript:  redis.NewScript(cartRenameScript),
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock takes a distributed lock and returns the owner token needed to
// release it. ok is false when someone else holds the lock.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (token string, ok bool, err error) {
	token = uuid.NewString()
	ok, err = c.rdb.SetNX(ctx, lockRedisKey(lockKey), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockRedisKey(lockKey)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func lockRedisKey(lockKey string) string {
	return fmt.Sprintf("lock:%s", lockKey)
}
