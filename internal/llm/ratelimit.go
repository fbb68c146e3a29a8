package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// NewLimiter builds a token bucket for one provider. It returns nil when
// perSecond <= 0.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// RateLimited throttles calls to the wrapped Generator with a token bucket.
// Clients built for different API keys may share one limiter.
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

func NewRateLimited(next Generator, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{
		next:    next,
		limiter: limiter,
	}
}

// Generate waits for a token first. A wait that would outlast the context
// deadline fails fast with a transient error so the caller may retry later.
func (r *RateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
		return "", transientErr("ratelimit", 0, err)
	}
	return r.next.Generate(ctx, prompt)
}
