package open115

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimiter throttles outbound provider calls. A zero rps disables
// throttling entirely (Wait becomes a no-op).
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(rps, burst float64) *rateLimiter {
	if rps <= 0 {
		return &rateLimiter{}
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), int(burst))}
}

func (r *rateLimiter) Wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
