package driving

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// SynthesisService is the on-demand cross-document suggestion track.
type SynthesisService interface {
	// Synthesize builds suggestions from the principal's slice of their
	// default knowledge base.
	Synthesize(ctx context.Context, req domain.SynthesisRequest) (*domain.SynthesisResult, error)

	// Readiness reports the principal's progress towards the synthesis
	// thresholds without calling the LLM.
	Readiness(ctx context.Context, principal string) (*domain.Readiness, error)
}
