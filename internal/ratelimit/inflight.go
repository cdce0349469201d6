package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"github.com/sakif/leaseshield/internal/apperror"
)

// DefaultHold bounds how long a crashed holder can block its user.
const DefaultHold = 5 * time.Minute

// HoldFor sizes a hold to outlast n sequential upstream calls of at most
// perCall each, plus a minute of slack. It never returns less than
// DefaultHold.
func HoldFor(n int, perCall time.Duration) time.Duration {
	hold := time.Duration(n)*perCall + time.Minute
	if hold < DefaultHold {
		return DefaultHold
	}
	return hold
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Guard admits one submission at a time per (user, kind). Acquire returns
// apperror.ErrConflict while another is running.
type Guard interface {
	Acquire(ctx context.Context, userID, kind string) (release func(), err error)
}

// RedisGuard holds a SET NX PX lock per (user, kind).
type RedisGuard struct {
	client *redis.Client
	prefix string
	hold   time.Duration
}

func NewRedisGuard(client *redis.Client, hold time.Duration) *RedisGuard {
	if hold <= 0 {
		hold = DefaultHold
	}
	return &RedisGuard{client: client, prefix: "leaseshield:inflight", hold: hold}
}

func (g *RedisGuard) Acquire(ctx context.Context, userID, kind string) (func(), error) {
	key := fmt.Sprintf("%s:%s:%s", g.prefix, normalizeKey(userID), normalizeKey(kind))
	token := xid.New().String()

	ok, err := g.client.SetNX(ctx, key, token, g.hold).Result()
	if err != nil {
		return nil, fmt.Errorf("ratelimit: acquiring %s: %w", kind, err)
	}
	if !ok {
		return nil, busy(kind)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, g.client, []string{key}, token).Err()
		})
	}, nil
}

// MemoryGuard is the single-process Guard.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: map[string]struct{}{}}
}

func (g *MemoryGuard) Acquire(_ context.Context, userID, kind string) (func(), error) {
	key := normalizeKey(userID) + ":" + normalizeKey(kind)

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.held[key]; held {
		return nil, busy(kind)
	}
	g.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, key)
			g.mu.Unlock()
		})
	}, nil
}

func busy(kind string) error {
	return &apperror.AppError{Err: apperror.ErrConflict, Message: "A " + kind + " is already in progress"}
}
