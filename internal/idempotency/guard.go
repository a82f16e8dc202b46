// Package idempotency reserves idempotency keys while a request holding them is in flight.
//
// The ledger's unique idempotency_key column remains the source of truth for replays; a
// reservation only stops a second concurrent request with the same key from racing the first.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"closedloop-wallet/internal/util"
)

const keyPrefix = "wallet:idempotency:v1:"

// ReleaseFunc gives up a reservation. It is safe to call more than once.
type ReleaseFunc func()

// Guard reserves idempotency keys.
type Guard interface {
	// Reserve claims key until the returned ReleaseFunc is called or the TTL expires.
	// It fails with util.ErrIdempotencyInProgress when another holder owns the key.
	Reserve(ctx context.Context, key string) (ReleaseFunc, error)
}

// NopGuard never blocks. Used when no Redis is configured.
type NopGuard struct{}

// Reserve always succeeds.
func (NopGuard) Reserve(context.Context, string) (ReleaseFunc, error) {
	return func() {}, nil
}

// releaseScript deletes the key only while it still holds our token, so an expired
// reservation re-acquired by someone else is never removed.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard stores reservations in Redis with SET NX and a TTL.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisGuard creates a RedisGuard. ttl bounds how long a crashed holder keeps a key.
func NewRedisGuard(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGuard{client: client, ttl: ttl, logger: logger}
}

// Reserve claims key for this caller.
func (g *RedisGuard) Reserve(ctx context.Context, key string) (ReleaseFunc, error) {
	if key == "" {
		return nil, fmt.Errorf("reserve idempotency key: %w", util.ErrInvalidInput)
	}

	redisKey := keyPrefix + key
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, redisKey, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if !ok {
		return nil, util.ErrIdempotencyInProgress
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The request context may already be cancelled; release on a short detached one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, g.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			g.logger.Warn("failed to release idempotency reservation", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
