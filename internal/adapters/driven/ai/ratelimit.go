package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// Ensure RateLimitedLLM implements the interface.
var _ driven.LLMService = (*RateLimitedLLM)(nil)

// RateLimitedLLM throttles Generate calls with a token bucket. The pipeline
// uses it for background summarisation and seed jobs; synthesis talks to the
// provider directly.
type RateLimitedLLM struct {
	next   driven.LLMService
	bucket *rate.Limiter
}

// NewRateLimitedLLM wraps next at perSecond requests per second with a burst
// of one. A non-positive rate returns next unchanged.
func NewRateLimitedLLM(next driven.LLMService, perSecond float64) driven.LLMService {
	if next == nil || perSecond <= 0 {
		return next
	}
	return &RateLimitedLLM{
		next:   next,
		bucket: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Generate waits for a token, then calls the wrapped service.
func (r *RateLimitedLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Generate(ctx, prompt, opts)
}

// ModelName returns the wrapped model name.
func (r *RateLimitedLLM) ModelName() string {
	return r.next.ModelName()
}

// Ping is not throttled.
func (r *RateLimitedLLM) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

// Close closes the wrapped service.
func (r *RateLimitedLLM) Close() error {
	return r.next.Close()
}
