package mcp

import (
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
)

// Ports aggregates the driving ports the MCP server calls.
type Ports struct {
	// KnowledgeBases resolves the principal's default knowledge base and stats.
	KnowledgeBases driving.KnowledgeBaseService

	// Pipeline accepts documents. Optional; ingest_document fails without it.
	Pipeline driving.PipelineService

	// IdeaSeeds lists and generates quick ideas.
	IdeaSeeds driving.IdeaSeedService

	// Synthesis runs on-demand synthesis.
	Synthesis driving.SynthesisService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.IdeaSeeds == nil {
		return ErrMissingIdeaSeedService
	}
	if p.Synthesis == nil {
		return ErrMissingSynthesisService
	}
	return nil
}
