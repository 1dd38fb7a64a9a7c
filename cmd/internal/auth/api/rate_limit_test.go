package authapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, err := l.Allow(ctx, "scan:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(20 * time.Second)
	ok, _, _ = l.Allow(ctx, "scan:1.2.3.4")
	assert.True(t, ok)

	now = now.Add(10 * time.Second)
	ok, retry, _ := l.Allow(ctx, "scan:1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Second, retry)

	// Other keys are independent.
	ok, _, _ = l.Allow(ctx, "scan:5.6.7.8")
	assert.True(t, ok)

	// The first event leaves the window.
	now = now.Add(31 * time.Second)
	ok, _, _ = l.Allow(ctx, "scan:1.2.3.4")
	assert.True(t, ok)
}

func TestMemoryLimiter_PrunesIdleKeys(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(1, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < memoryLimiterSweepAt; i++ {
		_, _, _ = l.Allow(ctx, string(rune('a'+i%26))+time.Duration(i).String())
	}
	now = now.Add(2 * time.Minute)
	_, _, _ = l.Allow(ctx, "fresh")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Len(t, l.events, 1)
}

func TestWriteRateLimited_RetryAfterRoundsUp(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimited(rec, 1500*time.Millisecond)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "garbage, 203.0.113.9, 10.0.0.2")

	assert.Equal(t, "10.0.0.1", ClientIP(r, false).String())
	assert.Equal(t, "203.0.113.9", ClientIP(r, true).String())

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(r, true).String())

	r.RemoteAddr = "not-an-addr"
	assert.Nil(t, ClientIP(r, false))
	assert.Equal(t, "unknown", ipString(ClientIP(r, false)))
}

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func TestRedisLimiter_Allow(t *testing.T) {
	client := setupTestRedis(t)
	l := NewRedisLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "scan:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}

	ok, retry, err := l.Allow(ctx, "scan:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, retry > 0 && retry <= time.Minute, "retry %s", retry)

	ok, _, err = l.Allow(ctx, "scan:5.6.7.8")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Reset(ctx, "scan:1.2.3.4"))
	ok, _, err = l.Allow(ctx, "scan:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_BlockedAttemptsAreNotCounted(t *testing.T) {
	client := setupTestRedis(t)
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	l := NewRedisLimiter(client, 2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _, err := l.Allow(ctx, "scan:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(20 * time.Second)
	ok, _, err = l.Allow(ctx, "scan:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)

	// Retrying while blocked must not push the window forward.
	for i := 0; i < 5; i++ {
		now = now.Add(5 * time.Second)
		ok, retry, err := l.Allow(ctx, "scan:1.2.3.4")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 35*time.Second-time.Duration(i)*5*time.Second, retry)
	}

	// The first event leaves the window; the blocked retries left no trace.
	now = now.Add(16 * time.Second)
	ok, _, err = l.Allow(ctx, "scan:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
}
