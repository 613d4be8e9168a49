package ratelimiter

import (
	"net/http"
	"strconv"
)

// KeyFunc extracts the bucket key from the request. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// DeniedFunc writes the response for a limited request. res is nil when the
// store failed, and err is nil when the bucket was simply empty.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, res *Result, err error)

// Middleware takes one token per request and sets the X-RateLimit headers.
func Middleware(b *Bucket, keyFunc KeyFunc, onDenied DeniedFunc) func(http.Handler) http.Handler {
	if b == nil || keyFunc == nil {
		panic("ratelimiter: bucket and key func are required")
	}
	if onDenied == nil {
		onDenied = func(w http.ResponseWriter, _ *http.Request, res *Result, _ error) {
			if res == nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := b.Allow(r.Context(), key)
			if err != nil {
				onDenied(w, r, nil, err)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				if secs := int(res.RetryAfter().Seconds()); secs > 0 {
					h.Set("Retry-After", strconv.Itoa(secs))
				}
				onDenied(w, r, res, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
