package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/leaseshield/internal/apperror"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFixedWindowLimiter(t *testing.T) {
	_, client := newRedis(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "user-1"))
	assert.True(t, limiter.Allow(ctx, "user-1"))
	assert.False(t, limiter.Allow(ctx, "user-1"))
	assert.True(t, limiter.Allow(ctx, "user-2"))
}

func TestFixedWindowLimiter_NewWindow(t *testing.T) {
	_, client := newRedis(t)
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Minute)
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter.clock = clock
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "u"))
	assert.False(t, limiter.Allow(ctx, "u"))
	clock.Advance(time.Minute)
	assert.True(t, limiter.Allow(ctx, "u"))
}

func TestFixedWindowLimiter_FailClosed(t *testing.T) {
	mr, client := newRedis(t)
	limiter, err := NewFixedWindowLimiter(client, "test", 5, time.Second)
	require.NoError(t, err)

	mr.Close()
	assert.False(t, limiter.Allow(context.Background(), "u"))
}

func TestFixedWindowLimiter_RequiresPositiveLimits(t *testing.T) {
	_, client := newRedis(t)
	_, err := NewFixedWindowLimiter(client, "", 0, time.Second)
	assert.Error(t, err)
	_, err = NewFixedWindowLimiter(nil, "", 1, time.Second)
	assert.Error(t, err)
}

func TestMemoryLimiter(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	limiter, err := NewMemoryLimiter(clock, 2, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, limiter.Allow(ctx, "u"))
	assert.True(t, limiter.Allow(ctx, "u"))
	assert.False(t, limiter.Allow(ctx, "u"))
	assert.True(t, limiter.Allow(ctx, "other"))

	clock.Advance(24 * time.Hour)
	assert.True(t, limiter.Allow(ctx, "u"))
}

func TestRedisGuard(t *testing.T) {
	mr, client := newRedis(t)
	guard := NewRedisGuard(client, time.Minute)
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "u1", "analysis")
	require.NoError(t, err)

	_, err = guard.Acquire(ctx, "u1", "analysis")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	other, err := guard.Acquire(ctx, "u1", "batch")
	require.NoError(t, err)
	other()

	assert.Equal(t, time.Minute, mr.TTL("leaseshield:inflight:u1:analysis"))

	release()
	release()
	again, err := guard.Acquire(ctx, "u1", "analysis")
	require.NoError(t, err)
	again()
}

func TestHoldFor(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		perCall time.Duration
		want    time.Duration
	}{
		{name: "full batch at the default timeout", n: 5, perCall: 2 * time.Minute, want: 11 * time.Minute},
		{name: "short calls keep the default", n: 1, perCall: time.Second, want: DefaultHold},
		{name: "no timeout", n: 5, perCall: 0, want: DefaultHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HoldFor(tt.n, tt.perCall))
		})
	}
}

func TestRedisGuard_HoldOutlastsSlowBatch(t *testing.T) {
	mr, client := newRedis(t)
	guard := NewRedisGuard(client, HoldFor(5, 2*time.Minute))

	release, err := guard.Acquire(context.Background(), "u1", "batch")
	require.NoError(t, err)
	defer release()

	// Four slow items in, the lock must still be held.
	mr.FastForward(4 * 2 * time.Minute)
	_, err = guard.Acquire(context.Background(), "u1", "batch")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestRedisGuard_ExpiredHoldDoesNotReleaseNewOwner(t *testing.T) {
	mr, client := newRedis(t)
	guard := NewRedisGuard(client, time.Minute)
	ctx := context.Background()

	stale, err := guard.Acquire(ctx, "u1", "analysis")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	_, err = guard.Acquire(ctx, "u1", "analysis")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("leaseshield:inflight:u1:analysis"))
}

func TestMemoryGuard(t *testing.T) {
	guard := NewMemoryGuard()
	ctx := context.Background()

	release, err := guard.Acquire(ctx, "u1", "analysis")
	require.NoError(t, err)
	_, err = guard.Acquire(ctx, "u1", "analysis")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	release()
	release, err = guard.Acquire(ctx, "u1", "analysis")
	require.NoError(t, err)
	release()
}
