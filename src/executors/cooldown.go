package executors

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownTracker remembers when each user was last analyzed. The state is
// best effort: losing it only changes analysis frequency, never correctness.
type CooldownTracker interface {
	Get(ctx context.Context, userID uint) (time.Time, error)
	Set(ctx context.Context, userID uint, t time.Time) error
}

// MemoryCooldownTracker is the process-local default; it resets on restart.
type MemoryCooldownTracker struct {
	mu   sync.Mutex
	last map[uint]time.Time
}

func NewMemoryCooldownTracker() *MemoryCooldownTracker {
	return &MemoryCooldownTracker{
		last: make(map[uint]time.Time),
	}
}

func (t *MemoryCooldownTracker) Get(ctx context.Context, userID uint) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[userID], nil
}

func (t *MemoryCooldownTracker) Set(ctx context.Context, userID uint, ts time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[userID] = ts
	return nil
}

// RedisCooldownTracker shares cooldown state across processes. A read error
// is returned to the caller, which treats the user as never analyzed.
type RedisCooldownTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCooldownTracker(client *redis.Client, prefix string, ttl time.Duration) *RedisCooldownTracker {
	if prefix == "" {
		prefix = "botmanager:cooldown"
	}
	return &RedisCooldownTracker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (t *RedisCooldownTracker) key(userID uint) string {
	return fmt.Sprintf("%s:%d", t.prefix, userID)
}

func (t *RedisCooldownTracker) Get(ctx context.Context, userID uint) (time.Time, error) {
	val, err := t.client.Get(ctx, t.key(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt cooldown value %q: %w", val, err)
	}

	return time.Unix(unix, 0), nil
}

func (t *RedisCooldownTracker) Set(ctx context.Context, userID uint, ts time.Time) error {
	return t.client.Set(ctx, t.key(userID), strconv.FormatInt(ts.Unix(), 10), t.ttl).Err()
}
