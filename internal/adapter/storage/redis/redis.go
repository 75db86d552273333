package redis

import (
	"context"
	"fmt"

	"reseller-ledger/config"
	"reseller-ledger/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// keyPrefix namespaces every key this service writes.
const keyPrefix = "ledger:"

// NewClient connects to Redis. A failed ping is fatal for the caller; Redis outages after
// startup are tolerated by the guard, cache and limiter.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	opts := &goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}
	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	log.Info().
		Str("addr", opts.Addr).
		Int("db", opts.DB).
		Int("pool_size", opts.PoolSize).
		Msg("Redis ready for webhook dedup, idempotency and rate limits")
	return client, nil
}

// Probe reports Redis as unhealthy when it stops answering or its connection pool is exhausted.
func Probe(client *goredis.Client) ports.NamedCheck {
	return ports.NamedCheck{
		Dependency: "redis",
		Probe: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("probe redis: %w", err)
			}
			stats := client.PoolStats()
			if size := uint32(client.Options().PoolSize); size > 0 && stats.TotalConns >= size && stats.IdleConns == 0 {
				return fmt.Errorf("redis pool exhausted (%d conns, %d timeouts)", stats.TotalConns, stats.Timeouts)
			}
			return nil
		},
	}
}
