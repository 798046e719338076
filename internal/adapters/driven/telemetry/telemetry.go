// Package telemetry implements driven.Telemetry with Prometheus counters and
// OpenTelemetry spans.
package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// Ensure Telemetry implements the interface.
var _ driven.Telemetry = (*Telemetry)(nil)

const instrumentationName = "github.com/custodia-labs/kbsynth"

// Telemetry records pipeline and synthesis observations.
type Telemetry struct {
	tracer trace.Tracer

	stageCompleted    *prometheus.CounterVec
	stageFailed       *prometheus.CounterVec
	seedsGenerated    prometheus.Counter
	synthesisTotal    *prometheus.CounterVec
	synthesisFiltered prometheus.Counter
}

// Option configures a Telemetry.
type Option func(*Telemetry)

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(t *Telemetry) {
		t.tracer = tp.Tracer(instrumentationName)
	}
}

// New registers the kbsynth metrics on reg.
// Registering twice on the same registerer panics.
func New(reg prometheus.Registerer, opts ...Option) *Telemetry {
	factory := promauto.With(reg)

	t := &Telemetry{
		tracer: otel.Tracer(instrumentationName),
		stageCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kbsynth_stage_completed_total",
			Help: "Documents that completed a pipeline stage",
		}, []string{"stage"}),
		stageFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kbsynth_stage_failed_total",
			Help: "Documents that failed a pipeline stage",
		}, []string{"stage"}),
		seedsGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "kbsynth_idea_seeds_generated_total",
			Help: "Build idea seeds written",
		}),
		synthesisTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kbsynth_synthesis_requests_total",
			Help: "Synthesis requests by outcome",
		}, []string{"outcome"}),
		synthesisFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "kbsynth_synthesis_filtered_total",
			Help: "Synthesis candidates dropped by the quality filter",
		}),
	}

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StageCompleted records a successful stage transition.
func (t *Telemetry) StageCompleted(stage domain.Stage) {
	t.stageCompleted.WithLabelValues(string(stage)).Inc()
}

// StageFailed records a failed stage.
func (t *Telemetry) StageFailed(stage domain.Stage) {
	t.stageFailed.WithLabelValues(string(stage)).Inc()
}

// SeedsGenerated records seeds written for one document.
func (t *Telemetry) SeedsGenerated(count int) {
	if count > 0 {
		t.seedsGenerated.Add(float64(count))
	}
}

// SynthesisFinished records a synthesis outcome.
func (t *Telemetry) SynthesisFinished(outcome string, filtered int) {
	t.synthesisTotal.WithLabelValues(outcome).Inc()
	if filtered > 0 {
		t.synthesisFiltered.Add(float64(filtered))
	}
}

// StartSpan opens a span. The returned func marks it failed when err is
// non-nil and ends it.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
