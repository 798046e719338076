package ai

import (
	"context"
	"time"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

var _ driven.LLMProbe = (*Prober)(nil)

// Prober builds a throwaway adapter for the settings and pings it.
type Prober struct {
	// Timeout bounds each probe. Zero uses pingTimeout.
	Timeout time.Duration
}

// NewProber returns a Prober with the default timeout.
func NewProber() *Prober {
	return &Prober{Timeout: pingTimeout}
}

// Probe implements driven.LLMProbe.
func (p *Prober) Probe(ctx context.Context, settings *domain.LLMSettings) error {
	svc, err := CreateLLMService(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close() //nolint:errcheck // adapters hold no resources

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = pingTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return svc.Ping(ctx)
}
