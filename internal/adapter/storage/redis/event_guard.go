package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// WebhookEventGuard implements ports.WebhookEventGuard with SET NX marks.
// The webhook_events table stays the source of truth; a lost mark only
// costs one extra database round trip.
type WebhookEventGuard struct {
	client *goredis.Client
	prefix string
}

// NewWebhookEventGuard creates a Redis-backed webhook dedup guard.
func NewWebhookEventGuard(client *goredis.Client) *WebhookEventGuard {
	return &WebhookEventGuard{
		client: client,
		prefix: keyPrefix + "webhook:",
	}
}

// MarkIfNew returns true if key was not yet marked, false for a redelivery.
func (g *WebhookEventGuard) MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_, err := g.client.SetArgs(ctx, g.prefix+key, time.Now().Unix(), goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis webhook mark: %w", err)
	}
	return true, nil
}

// Forget drops the mark so the gateway's next redelivery is processed.
func (g *WebhookEventGuard) Forget(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis webhook forget: %w", err)
	}
	return nil
}
