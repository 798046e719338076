package driven

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// Telemetry receives pipeline and synthesis observations.
// Implementations must be safe for concurrent use.
type Telemetry interface {
	// StageCompleted records a successful stage transition.
	StageCompleted(stage domain.Stage)

	// StageFailed records a failed stage.
	StageFailed(stage domain.Stage)

	// SeedsGenerated records seeds written for one document.
	SeedsGenerated(count int)

	// SynthesisFinished records a synthesis outcome and the number of
	// candidates dropped by the quality filter.
	SynthesisFinished(outcome string, filtered int)

	// StartSpan opens a trace span; end must be called exactly once.
	StartSpan(ctx context.Context, name string) (context.Context, func(err error))
}

// Synthesis outcomes reported to Telemetry.
const (
	OutcomeSuccess               = "success"
	OutcomeInsufficientKnowledge = "insufficient_knowledge"
	OutcomeProviderError         = "provider_error"
	OutcomeFilteredEmpty         = "filtered_empty"
	OutcomeInvalid               = "invalid"
)

// NopTelemetry discards all observations.
type NopTelemetry struct{}

var _ Telemetry = NopTelemetry{}

func (NopTelemetry) StageCompleted(domain.Stage) {}
func (NopTelemetry) StageFailed(domain.Stage) {}
func (NopTelemetry) SeedsGenerated(int) {}
func (NopTelemetry) SynthesisFinished(string, int) {}

// StartSpan returns ctx unchanged.
func (NopTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
