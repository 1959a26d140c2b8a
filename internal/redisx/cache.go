package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// OrderCache is the fast path in front of the order store. Postgres stays the
// source of truth, so every method treats a nil cache as a permanent miss.
type OrderCache struct {
	RDB *redis.Client
}

func NewOrderCache(rdb *redis.Client) *OrderCache { return &OrderCache{RDB: rdb} }

func (c *OrderCache) enabled() bool { return c != nil && c.RDB != nil }

// IdempotentOrderID returns the order already created for (userID, key).
func (c *OrderCache) IdempotentOrderID(ctx context.Context, userID, key string) (string, bool, error) {
	if !c.enabled() || key == "" {
		return "", false, nil
	}
	id, err := c.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *OrderCache) RememberIdempotency(ctx context.Context, userID, key, orderID string) error {
	if !c.enabled() || key == "" {
		return nil
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, userID, key), orderID, TTLIdempotency).Err()
}

// Order returns the cached JSON body of an order.
func (c *OrderCache) Order(ctx context.Context, orderID string) ([]byte, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	b, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrder, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *OrderCache) PutOrder(ctx context.Context, orderID string, body []byte) error {
	if !c.enabled() {
		return nil
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrder, orderID), body, TTLOrderCache).Err()
}
