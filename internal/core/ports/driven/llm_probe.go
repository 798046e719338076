package driven

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// LLMProbe checks that provider settings reach a working model before
// they are trusted.
type LLMProbe interface {
	// Probe returns nil when settings name no provider.
	Probe(ctx context.Context, settings *domain.LLMSettings) error
}
