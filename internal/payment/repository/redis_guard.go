package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tair/course-payments/internal/payment/domain"
	"github.com/tair/course-payments/pkg/logger"
)

const redisGuardPrefix = "payments:processed:"

// RedisGuard is a fast path in front of the durable processed_operations table.
// A hit in Redis short-circuits redelivered webhooks; a miss or a Redis failure
// falls back to the durable guard, which stays the source of truth.
type RedisGuard struct {
	client  *redis.Client
	durable domain.IdempotencyGuard
	ttl     time.Duration
}

// NewRedisGuard creates a guard; a nil client disables the cache
func NewRedisGuard(client *redis.Client, durable domain.IdempotencyGuard, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuard{client: client, durable: durable, ttl: ttl}
}

// IsProcessed checks Redis, then the durable store
func (g *RedisGuard) IsProcessed(ctx context.Context, key string) (bool, error) {
	if g.client != nil {
		n, err := g.client.Exists(ctx, redisGuardPrefix+key).Result()
		if err == nil && n > 0 {
			logger.Debug(ctx).Str("operation_key", key).Msg("Idempotency cache hit")
			return true, nil
		}
		if err != nil {
			logger.Warn(ctx).Err(err).Str("operation_key", key).Msg("Idempotency cache unavailable")
		}
	}
	return g.durable.IsProcessed(ctx, key)
}

// MarkProcessed remembers key in Redis only. Call it after the durable mark
// has committed; a Redis failure is logged and ignored.
func (g *RedisGuard) MarkProcessed(ctx context.Context, key, result string) error {
	if g.client == nil {
		return nil
	}
	ok, err := g.client.SetNX(ctx, redisGuardPrefix+key, result, g.ttl).Result()
	if err != nil {
		logger.Warn(ctx).Err(err).Str("operation_key", key).Msg("Failed to cache processed operation")
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyProcessed, key)
	}
	return nil
}
