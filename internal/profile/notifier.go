package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Notifier fans out "profile changed" events per user. Payloads carry only
// the user id; listeners reload from the store, which stays authoritative.
type Notifier interface {
	Publish(ctx context.Context, userID string) error
	// Subscribe calls fn for every change to userID's profile until the
	// returned function is called.
	Subscribe(ctx context.Context, userID string, fn func()) (unsubscribe func(), err error)
}

// Channel is the Redis pub/sub channel for a user's profile.
func Channel(userID string) string {
	return "profile:" + userID
}

// RedisNotifier publishes over Redis so every server instance sees a change
// made through any of them.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier connects to redisURL (redis://[:password@]host:port/db).
func NewRedisNotifier(ctx context.Context, redisURL string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("profile: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("profile: connect to redis: %w", err)
	}
	return &RedisNotifier{client: client}, nil
}

// NewRedisNotifierWithClient wraps an existing client.
func NewRedisNotifierWithClient(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Client exposes the underlying connection so other Redis-backed components
// can share it.
func (n *RedisNotifier) Client() *redis.Client {
	return n.client
}

func (n *RedisNotifier) Publish(ctx context.Context, userID string) error {
	if err := n.client.Publish(ctx, Channel(userID), userID).Err(); err != nil {
		return fmt.Errorf("profile: publish %s: %w", userID, err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, userID string, fn func()) (func(), error) {
	ps := n.client.Subscribe(ctx, Channel(userID))

	// Wait for the subscription confirmation so a Publish issued right after
	// Subscribe returns is not lost.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("profile: subscribe %s: %w", userID, err)
	}

	ch := ps.Channel()
	go func() {
		for range ch {
			fn()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { _ = ps.Close() })
	}, nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// LocalNotifier is the in-process Notifier used when REDIS_URL is unset.
// It only reaches subscribers inside the same process.
type LocalNotifier struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func()
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[int]func())}
}

func (n *LocalNotifier) Publish(_ context.Context, userID string) error {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs[userID]))
	for _, fn := range n.subs[userID] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		go fn()
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, userID string, fn func()) (func(), error) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[int]func())
	}
	n.subs[userID][id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs[userID], id)
			if len(n.subs[userID]) == 0 {
				delete(n.subs, userID)
			}
		})
	}, nil
}

// Subscribers reports the active subscriptions for userID.
func (n *LocalNotifier) Subscribers(userID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[userID])
}
