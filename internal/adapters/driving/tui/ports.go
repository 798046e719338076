// Package tui provides an interactive terminal browser for quick ideas and
// synthesis suggestions. It is a driving adapter over the core services.
package tui

import (
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
)

// Ports aggregates the driving ports required by the TUI.
type Ports struct {
	// KnowledgeBases resolves the principal's default knowledge base.
	KnowledgeBases driving.KnowledgeBaseService

	// IdeaSeeds lists stored quick ideas.
	IdeaSeeds driving.IdeaSeedService

	// Synthesis runs on-demand synthesis.
	Synthesis driving.SynthesisService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.KnowledgeBases == nil {
		return ErrMissingKnowledgeBaseService
	}
	if p.IdeaSeeds == nil {
		return ErrMissingIdeaSeedService
	}
	if p.Synthesis == nil {
		return ErrMissingSynthesisService
	}
	return nil
}
