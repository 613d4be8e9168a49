package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config is the token bucket shape. The bucket starts full, holds at most
// Capacity tokens and regains RefillRate tokens every RefillInterval.
type Config struct {
	Capacity       int           `env:"RATE_LIMIT_CAPACITY" envDefault:"20"`
	RefillRate     int           `env:"RATE_LIMIT_REFILL_RATE" envDefault:"5"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" envDefault:"1m"`
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	}
	if c.RefillInterval <= 0 {
		return fmt.Errorf("%w: refill interval must be positive, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// refill returns the token count after topping up for the time elapsed since
// lastRefill, and the new lastRefill. Partial intervals carry over until
// the bucket is full.
func (c Config) refill(tokens int, lastRefill, now time.Time) (int, time.Time) {
	elapsed := now.Sub(lastRefill)
	if elapsed < c.RefillInterval {
		return tokens, lastRefill
	}
	maxIntervals := int64(c.Capacity/c.RefillRate + 1)
	intervals := min(int64(elapsed/c.RefillInterval), maxIntervals)
	tokens += int(intervals) * c.RefillRate
	if tokens >= c.Capacity {
		return c.Capacity, now
	}
	return tokens, lastRefill.Add(time.Duration(intervals) * c.RefillInterval)
}

// Store keeps bucket state.
type Store interface {
	// ConsumeTokens takes tokens from the bucket at key and returns what is
	// left; a negative remainder means the request is denied and nothing
	// was taken.
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	Reset(ctx context.Context, key string) error
}

// Result is the outcome of a single check.
type Result struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allowed reports whether the request fit in the bucket.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for allowed requests.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Bucket is a token bucket limiter over a Store.
type Bucket struct {
	store  Store
	config Config
}

// NewBucket validates config and returns a Bucket.
func NewBucket(store Store, config Config) (*Bucket, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Bucket{store: store, config: config}, nil
}

// Allow consumes a single token for key.
func (b *Bucket) Allow(ctx context.Context, key string) (*Result, error) {
	return b.AllowN(ctx, key, 1)
}

// AllowN consumes n tokens for key. n must be positive.
func (b *Bucket) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	remaining, resetAt, err := b.store.ConsumeTokens(ctx, key, n, b.config)
	if err != nil {
		return nil, err
	}
	return &Result{Limit: b.config.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}

// Reset refills the bucket for key.
func (b *Bucket) Reset(ctx context.Context, key string) error {
	return b.store.Reset(ctx, key)
}
