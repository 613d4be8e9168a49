package ratelimiter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisMaxRetries = 10

// RedisStore shares buckets between API instances. Each bucket is a hash
// {tokens, refill_ms} updated under WATCH so concurrent consumers never
// overdraw it.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore stores buckets under "<prefix>:rl:<key>".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if client == nil {
		panic("ratelimiter: redis client is required")
	}
	if prefix == "" {
		prefix = "examgate"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) key(k string) string { return s.prefix + ":rl:" + k }

func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (int, time.Time, error) {
	var (
		remaining int
		resetAt   time.Time
	)
	rk := s.key(key)

	txf := func(tx *redis.Tx) error {
		now := s.now()
		vals, err := tx.HMGet(ctx, rk, "tokens", "refill_ms").Result()
		if err != nil {
			return err
		}

		current, lastRefill := config.Capacity, now
		if t, ok := vals[0].(string); ok {
			if n, err := strconv.Atoi(t); err == nil {
				current = n
			}
		}
		if ms, ok := vals[1].(string); ok {
			if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
				lastRefill = time.UnixMilli(n)
			}
		}

		current, lastRefill = config.refill(current, lastRefill, now)
		resetAt = lastRefill.Add(config.RefillInterval)
		if current < tokens {
			remaining = current - tokens
		} else {
			current -= tokens
			remaining = current
		}

		ttl := time.Duration(config.Capacity/config.RefillRate+1) * config.RefillInterval
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rk, "tokens", current, "refill_ms", lastRefill.UnixMilli())
			pipe.PExpire(ctx, rk, ttl)
			return nil
		})
		return err
	}

	for range redisMaxRetries {
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, time.Time{}, errors.Join(ErrStoreUnavailable, err)
		}
		return remaining, resetAt, nil
	}
	return 0, time.Time{}, errors.Join(ErrStoreUnavailable, redis.TxFailedErr)
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
