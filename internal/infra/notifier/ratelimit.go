package notifier

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces webhook posts with a token bucket. A failing check cycle
// can emit many reports at once; Slack and Discord reject bursts.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond posts on average and burst posts at once.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Allow blocks until a post may go out or ctx ends.
func (r *RateLimiter) Allow(ctx context.Context) error {
	_, err := r.Wait(ctx)
	return err
}

// Wait is Allow that also reports how long the caller was held back.
// It fails immediately when the next token lies beyond ctx's deadline.
func (r *RateLimiter) Wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := r.limiter.Wait(ctx)
	return time.Since(start), err
}

// Limit returns the configured rate and burst.
func (r *RateLimiter) Limit() (perSecond float64, burst int) {
	return float64(r.limiter.Limit()), r.limiter.Burst()
}
