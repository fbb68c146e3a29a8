package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Options struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration

	// RatePerSecond <= 0 disables client-side throttling.
	RatePerSecond float64
	RateBurst     int

	// Limiter, when set, replaces the bucket built from RatePerSecond so
	// several clients draw from the same budget.
	Limiter *rate.Limiter
}

// NewGenerator builds the Generator for the configured provider.
func NewGenerator(ctx context.Context, opts Options) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider == "" {
		provider = "gemini"
	}

	var gen Generator
	switch provider {
	case "gemini":
		g, err := NewGeminiClient(ctx, opts.APIKey, opts.Model, opts.Timeout)
		if err != nil {
			return nil, err
		}
		gen = g
	case "openai":
		gen = NewOpenAIClient(opts.APIKey, opts.Model, opts.BaseURL, opts.Timeout)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", opts.Provider)
	}

	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewLimiter(opts.RatePerSecond, opts.RateBurst)
	}
	if limiter != nil {
		gen = NewRateLimited(gen, limiter)
	}
	return gen, nil
}
