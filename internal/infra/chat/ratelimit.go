package chat

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token-bucket limiter for a single recipient
// channel's outbound posts. The dispatcher holds one instance per
// channel so that posting to different channels never contends.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter enforcing requestsPerSecond sustained
// rate with the given burst. The dispatcher's 20-posts/minute contract
// is expressed as NewRateLimiter(20.0/60.0, 1): one token available at a
// time, refilled every 3 seconds.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Allow blocks until a token is available or ctx is canceled.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
