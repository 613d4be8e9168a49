// Package ratelimiter is a token bucket limiter with in-memory and Redis
// stores and a chi-compatible middleware.
//
// The billing API puts it in front of the lifecycle actions that reach the
// payment provider, keyed by the authenticated user:
//
//	bucket, _ := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), cfg)
//	r.Use(ratelimiter.Middleware(bucket, byUser, onLimited))
//
// A denied request consumes nothing, so a client that keeps retrying while
// limited regains access as soon as the next refill lands.
package ratelimiter
