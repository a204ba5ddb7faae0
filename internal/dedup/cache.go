// Package dedup provides an optional redis-backed cache of recently
// uploaded order ids so repeated runs can skip conversions the platform
// already has. Advisory only; the upstream orderId-based idempotency
// remains authoritative.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "convrelay:order:"

// Cache marks and checks order ids with a TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to redis and returns a Cache.
func New(addr, password string, db int, ttl time.Duration) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewWithClient(rdb, ttl)
}

// NewWithClient wraps an existing redis client (used by tests with
// miniredis).
func NewWithClient(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func key(accountID, orderID string) string {
	return keyPrefix + accountID + ":" + orderID
}

// Seen reports whether the order id was marked within the TTL window.
func (c *Cache) Seen(ctx context.Context, accountID, orderID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key(accountID, orderID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

// Mark records the order id as uploaded.
func (c *Cache) Mark(ctx context.Context, accountID, orderID string) error {
	if err := c.rdb.Set(ctx, key(accountID, orderID), "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}
