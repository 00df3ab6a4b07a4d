package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

type rateLimiter interface {
	Allow() bool
}

type limiterAdapter struct {
	limiter *rate.Limiter
}

// newTokenBucketLimiter returns nil, meaning unlimited, when either the rate
// or the burst is zero
func newTokenBucketLimiter(ratePerSecond float64, burst int) rateLimiter {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil
	}

	return &limiterAdapter{
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (l *limiterAdapter) Allow() bool {
	if l == nil || l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}

func rateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", "1")
			respondJSON(w, http.StatusTooManyRequests, errorBody(http.StatusTooManyRequests, "Too many requests", "rate limit exceeded, please retry shortly"))
		})
	}
}
