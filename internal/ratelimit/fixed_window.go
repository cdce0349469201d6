// Package ratelimit holds the Redis-backed quotas and guards shared by every
// server instance, with in-process versions for single-node development.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Limiter admits or rejects one request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// FixedWindowLimiter limits requests per key in a fixed time window.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  clockwork.Clock

	client *redis.Client
	prefix string
}

// NewFixedWindowLimiter creates a Redis-backed limiter.
func NewFixedWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limiter requires positive limit and window")
	}
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "leaseshield:ratelimit"
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		clock:  clockwork.NewRealClock(),
		client: client,
		prefix: prefix,
	}, nil
}

// Allow returns true when key is within quota. Redis failures fail closed.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	windowMs := l.window.Milliseconds()
	slot := l.clock.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	n, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false
	}
	return n <= int64(l.limit)
}

// MemoryLimiter is the single-process FixedWindowLimiter.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	clock  clockwork.Clock

	mu     sync.Mutex
	counts map[string]int
	slot   int64
}

func NewMemoryLimiter(clock clockwork.Clock, limit int, window time.Duration) (*MemoryLimiter, error) {
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limiter requires positive limit and window")
	}
	return &MemoryLimiter{limit: limit, window: window, clock: clock, counts: map[string]int{}}, nil
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	slot := l.clock.Now().UTC().UnixMilli() / l.window.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	if slot != l.slot {
		l.slot = slot
		clear(l.counts)
	}
	key = normalizeKey(key)
	l.counts[key]++
	return l.counts[key] <= l.limit
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "unknown"
	}
	return key
}
