package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache. It holds the serialized
// result of a withdrawal request under its seller-scoped idempotency key.
type IdempotencyCache struct {
	client     *goredis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewIdempotencyCache creates a cache whose entries live for defaultTTL unless Set is given a TTL.
func NewIdempotencyCache(client *goredis.Client, defaultTTL time.Duration) *IdempotencyCache {
	return &IdempotencyCache{
		client:     client,
		prefix:     keyPrefix + "idempotency:",
		defaultTTL: defaultTTL,
	}
}

// Get returns nil, nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}
