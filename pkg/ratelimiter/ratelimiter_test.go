package ratelimiter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/examgate/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var cfg = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Minute}

func TestNewBucket(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	for _, c := range []ratelimiter.Config{
		{Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 1},
	} {
		_, err := ratelimiter.NewBucket(store, c)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}
	_, err := ratelimiter.NewBucket(nil, cfg)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
}

func TestMemoryStoreBucket(t *testing.T) {
	t.Parallel()

	clk := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0), ratelimiter.WithClock(clk.Now))
	t.Cleanup(store.Close)
	b, err := ratelimiter.NewBucket(store, cfg)
	require.NoError(t, err)
	ctx := context.Background()

	for i := range 3 {
		res, err := b.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, res.Allowed(), "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := b.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed())

	other, err := b.Allow(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, other.Allowed())

	clk.Advance(90 * time.Second)
	res, err = b.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, 0, res.Remaining)

	clk.Advance(time.Hour)
	res, err = b.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining, "refill is capped at capacity")

	require.NoError(t, b.Reset(ctx, "u1"))
	_, err = b.AllowN(ctx, "u1", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	b, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 1, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	byHeader := func(r *http.Request) string { return r.Header.Get("X-User") }
	h := ratelimiter.Middleware(b, byHeader, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := call("u1")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	second := call("u1")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))

	for range 3 {
		assert.Equal(t, http.StatusNoContent, call("").Code, "requests without a key are not limited")
	}
}

func TestRedisStore(t *testing.T) {
	t.Parallel()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	b, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(client, "examgate_test"), cfg)
	require.NoError(t, err)
	ctx := context.Background()
	key := uuid.NewString()
	t.Cleanup(func() { _ = b.Reset(context.Background(), key) })

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Allow(ctx, key)
			if !assert.NoError(t, err) {
				return
			}
			if res.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, cfg.Capacity, allowed)
}
