package idempotency

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"closedloop-wallet/internal/util"
)

func setupGuard(t *testing.T, ttl time.Duration) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewRedisGuard(client, ttl, util.DiscardLogger()), mr
}

func TestRedisGuardRejectsConcurrentHolder(t *testing.T) {
	guard, _ := setupGuard(t, time.Minute)
	ctx := context.Background()

	release, err := guard.Reserve(ctx, "abc123")
	require.NoError(t, err)

	_, err = guard.Reserve(ctx, "abc123")
	assert.ErrorIs(t, err, util.ErrIdempotencyInProgress)

	release()

	releaseAgain, err := guard.Reserve(ctx, "abc123")
	require.NoError(t, err)
	releaseAgain()
}

func TestRedisGuardExpiredReservationIsNotReleasedByOldHolder(t *testing.T) {
	guard, mr := setupGuard(t, time.Second)
	ctx := context.Background()

	staleRelease, err := guard.Reserve(ctx, "k1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = guard.Reserve(ctx, "k1")
	require.NoError(t, err)

	staleRelease()

	assert.True(t, mr.Exists(keyPrefix+"k1"), "new holder's reservation must survive the stale release")
}

func TestRedisGuardReleaseIsIdempotent(t *testing.T) {
	guard, mr := setupGuard(t, time.Minute)

	release, err := guard.Reserve(context.Background(), "k2")
	require.NoError(t, err)
	release()
	release()

	assert.False(t, mr.Exists(keyPrefix+"k2"))
}

func TestRedisGuardRequiresKey(t *testing.T) {
	guard, _ := setupGuard(t, time.Minute)
	_, err := guard.Reserve(context.Background(), "")
	assert.ErrorIs(t, err, util.ErrInvalidInput)
}

func TestNopGuard(t *testing.T) {
	release, err := NopGuard{}.Reserve(context.Background(), "anything")
	require.NoError(t, err)
	release()
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = NewRedisClient(context.Background(), "")
	assert.Error(t, err)
}
