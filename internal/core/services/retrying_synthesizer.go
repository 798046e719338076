package services

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v5"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// Ensure RetryingSynthesizer implements the interface.
var _ driving.SynthesisService = (*RetryingSynthesizer)(nil)

// RetryingSynthesizer retries provider failures of the wrapped service with
// exponential backoff. Rejected requests and every other outcome are
// returned on the first attempt.
type RetryingSynthesizer struct {
	next       driving.SynthesisService
	maxTries   uint
	newBackOff func() backoff.BackOff
}

// NewRetryingSynthesizer wraps next. maxRetries counts retries after the
// first attempt.
func NewRetryingSynthesizer(next driving.SynthesisService, maxRetries int) *RetryingSynthesizer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingSynthesizer{
		next:     next,
		maxTries: uint(maxRetries) + 1,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Synthesize calls the wrapped service, retrying domain.ErrLLMProvider.
func (r *RetryingSynthesizer) Synthesize(ctx context.Context, req domain.SynthesisRequest) (*domain.SynthesisResult, error) {
	attempt := 0
	op := func() (*domain.SynthesisResult, error) {
		attempt++
		result, err := r.next.Synthesize(ctx, req)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrLLMProvider) || errors.Is(err, domain.ErrLLMRejected) {
			return result, backoff.Permanent(err)
		}
		logger.Debug("synthesis: attempt %d failed: %v", attempt, err)
		return nil, err
	}

	result, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxTries),
	)
	// The last permitted attempt comes back still wrapped.
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Unwrap()
	}
	return result, err
}

// Readiness delegates to the wrapped service.
func (r *RetryingSynthesizer) Readiness(ctx context.Context, principal string) (*domain.Readiness, error) {
	return r.next.Readiness(ctx, principal)
}
