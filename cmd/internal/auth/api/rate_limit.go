package authapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter decides whether one more event for key fits its window.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// memoryLimiterSweepAt is the key count that triggers pruning of idle keys.
const memoryLimiterSweepAt = 4096

// MemoryLimiter is a per-key sliding-window limiter held in process memory.
type MemoryLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter; invalid inputs fall back to 30 per minute.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	cut := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) >= memoryLimiterSweepAt {
		l.pruneLocked(cut)
	}

	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, kept[0].Add(l.window).Sub(now), nil
	}
	l.events[key] = append(kept, now)
	return true, 0, nil
}

func (l *MemoryLimiter) pruneLocked(cut time.Time) {
	for k, ts := range l.events {
		if len(ts) == 0 || !ts[len(ts)-1].After(cut) {
			delete(l.events, k)
		}
	}
}

// redisAllowScript prunes the window, then records the event only when it fits.
// Blocked attempts are not counted; the reply carries the oldest score so the
// caller can compute Retry-After. Scores are Unix microseconds.
var redisAllowScript = redis.NewScript(`
local cut = tonumber(ARGV[1]) - tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', cut)
if redis.call('ZCARD', KEYS[1]) < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[4])
  redis.call('PEXPIRE', KEYS[1], ARGV[5])
  return {1, 0}
end
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {0, tonumber(oldest[2])}
`)

// RedisLimiter is a sliding-window limiter shared across instances, kept in
// one sorted set per key.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter constructs a RedisLimiter; invalid inputs fall back to 30 per minute.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: "qrauth:ratelimit", now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := l.now()
	nowMicros := now.UnixMicro()

	res, err := redisAllowScript.Run(ctx, l.client,
		[]string{fmt.Sprintf("%s:%s", l.prefix, key)},
		nowMicros,
		l.window.Microseconds(),
		l.limit,
		uuid.NewString(),
		(l.window + time.Minute).Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: redis script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("ratelimit: redis script: unexpected reply %v", res)
	}

	if res[0] == 1 {
		return true, 0, nil
	}
	retry := time.UnixMicro(res[1]).Add(l.window).Sub(now)
	if retry <= 0 {
		retry = time.Microsecond
	}
	return false, retry, nil
}

// Reset clears the window for key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, fmt.Sprintf("%s:%s", l.prefix, key)).Err()
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}

var (
	_ Limiter = (*MemoryLimiter)(nil)
	_ Limiter = (*RedisLimiter)(nil)
)
