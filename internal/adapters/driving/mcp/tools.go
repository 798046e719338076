package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kbsynth/internal/adapters/driving/inbox"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// ListIdeasInput is the input schema for the list_quick_ideas tool.
type ListIdeasInput struct {
	KBID       string `json:"kb_id,omitempty" jsonschema:"knowledge base id; defaults to your default knowledge base"`
	Difficulty string `json:"difficulty,omitempty" jsonschema:"only return one tier: beginner, intermediate or advanced"`
	Limit      int    `json:"limit,omitempty" jsonschema:"maximum number of ideas (default 20, max 100)"`
}

// ListIdeasOutput is the output schema for the list_quick_ideas tool.
type ListIdeasOutput struct {
	KBID  string       `json:"kb_id"`
	Ideas []IdeaOutput `json:"ideas"`
	Count int          `json:"count"`
}

// IdeaOutput is one quick idea.
type IdeaOutput struct {
	DocumentID  int       `json:"document_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Difficulty  string    `json:"difficulty"`
	CreatedAt   string `json:"created_at"`
}

// SynthesizeInput is the input schema for the synthesize tool.
type SynthesizeInput struct {
	MaxSuggestions int `json:"max_suggestions,omitempty" jsonschema:"maximum suggestions to return (default 5, max 10)"`
}

// GenerateIdeasInput is the input schema for the generate_idea_seeds tool.
type GenerateIdeasInput struct {
	KBID       string `json:"kb_id" jsonschema:"knowledge base id"`
	DocumentID int    `json:"document_id" jsonschema:"document id within the knowledge base"`
}

// GenerateIdeasOutput is the output schema for the generate_idea_seeds tool.
type GenerateIdeasOutput struct {
	IdeasGenerated   int  `json:"ideas_generated"`
	AlreadyCompleted bool `json:"already_completed"`
}

// StatsInput is the input schema for the kb_stats tool.
type StatsInput struct {
	KBID string `json:"kb_id,omitempty" jsonschema:"knowledge base id; defaults to your default knowledge base"`
}

// StatsOutput is the output schema for the kb_stats tool.
type StatsOutput struct {
	KBID      string `json:"kb_id"`
	Documents int    `json:"documents"`
	Clusters  int    `json:"clusters"`
	Concepts  int    `json:"concepts"`
	Seeds     int    `json:"seeds"`
	Ready     bool   `json:"ready_for_synthesis"`
}

// ReadinessInput is the input schema for the readiness tool.
type ReadinessInput struct{}

// ConceptInput is one extracted concept.
type ConceptInput struct {
	Name       string  `json:"name" jsonschema:"concept name"`
	Category   string  `json:"category,omitempty" jsonschema:"concept category"`
	Confidence float64 `json:"confidence" jsonschema:"extraction confidence between 0 and 1"`
}

// IngestInput is the input schema for the ingest_document tool.
type IngestInput struct {
	KBID       string         `json:"kb_id" jsonschema:"knowledge base id"`
	DocumentID int            `json:"document_id" jsonschema:"document id, unique within the knowledge base"`
	Title      string         `json:"title,omitempty" jsonschema:"document title"`
	Content    string         `json:"content,omitempty" jsonschema:"extracted document text"`
	SourceType string         `json:"source_type,omitempty" jsonschema:"where the document came from, e.g. pdf or web"`
	Summary    string         `json:"summary,omitempty" jsonschema:"summary, when already available"`
	Concepts   []ConceptInput `json:"concepts,omitempty" jsonschema:"concepts extracted from the document"`
}

// IngestOutput is the output schema for the ingest_document tool.
type IngestOutput struct {
	KBID       string `json:"kb_id"`
	DocumentID int    `json:"document_id"`
	Stage      string `json:"stage"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_quick_ideas",
		Description: "List precomputed build ideas for your documents, newest first",
	}, s.handleListIdeas)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "synthesize",
		Description: "Suggest projects that combine concepts across your whole default knowledge base",
	}, s.handleSynthesize)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_idea_seeds",
		Description: "Generate quick build ideas for one summarized document",
	}, s.handleGenerateIdeas)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "kb_stats",
		Description: "Count your documents, clusters, concepts and ideas in a knowledge base",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "readiness",
		Description: "Report progress towards the synthesis thresholds",
	}, s.handleReadiness)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Add an extracted document to a knowledge base you own",
	}, s.handleIngest)
}

func (s *Server) handleListIdeas(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListIdeasInput,
) (*mcp.CallToolResult, ListIdeasOutput, error) {
	kbID, err := s.resolveKB(ctx, input.KBID)
	if err != nil {
		return nil, ListIdeasOutput{}, err
	}

	seeds, err := s.ports.IdeaSeeds.List(ctx, kbID, domain.SeedFilter{
		Difficulty: domain.Difficulty(input.Difficulty),
		Limit:      input.Limit,
	})
	if err != nil {
		return nil, ListIdeasOutput{}, err
	}

	output := ListIdeasOutput{
		KBID:  kbID.String(),
		Ideas: make([]IdeaOutput, len(seeds)),
		Count: len(seeds),
	}
	for i, seed := range seeds {
		output.Ideas[i] = IdeaOutput{
			DocumentID:  seed.DocumentID,
			Title:       seed.Title,
			Description: seed.Description,
			Difficulty:  seed.Difficulty.String(),
			CreatedAt:   seed.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	return nil, output, nil
}

func (s *Server) handleSynthesize(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SynthesizeInput,
) (*mcp.CallToolResult, domain.SynthesisResult, error) {
	if s.cfg.SynthesisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SynthesisTimeout)
		defer cancel()
	}

	result, err := s.ports.Synthesis.Synthesize(ctx, domain.SynthesisRequest{
		Principal:      s.cfg.Principal,
		MaxSuggestions: input.MaxSuggestions,
	})
	if err != nil {
		return nil, domain.SynthesisResult{}, err
	}
	return nil, *result, nil
}

func (s *Server) handleGenerateIdeas(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateIdeasInput,
) (*mcp.CallToolResult, GenerateIdeasOutput, error) {
	kbID, err := s.ownedKB(ctx, input.KBID)
	if err != nil {
		return nil, GenerateIdeasOutput{}, err
	}

	gen, err := s.ports.IdeaSeeds.Generate(ctx, kbID, input.DocumentID)
	if err != nil {
		return nil, GenerateIdeasOutput{}, err
	}
	return nil, GenerateIdeasOutput{
		IdeasGenerated:   gen.IdeasGenerated,
		AlreadyCompleted: gen.AlreadyCompleted,
	}, nil
}

func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input StatsInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	kbID, err := s.resolveKB(ctx, input.KBID)
	if err != nil {
		return nil, StatsOutput{}, err
	}

	stats, err := s.ports.KnowledgeBases.Stats(ctx, kbID, s.cfg.Principal)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	readiness := domain.Readiness{
		Documents: stats.Documents,
		Concepts:  stats.Concepts,
		Clusters:  stats.Clusters,
	}
	return nil, StatsOutput{
		KBID:      stats.KBID.String(),
		Documents: stats.Documents,
		Clusters:  stats.Clusters,
		Concepts:  stats.Concepts,
		Seeds:     stats.Seeds,
		Ready:     readiness.Ready(),
	}, nil
}

func (s *Server) handleReadiness(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ReadinessInput,
) (*mcp.CallToolResult, domain.Readiness, error) {
	r, err := s.ports.Synthesis.Readiness(ctx, s.cfg.Principal)
	if err != nil {
		return nil, domain.Readiness{}, err
	}
	return nil, *r, nil
}

func (s *Server) handleIngest(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IngestInput,
) (*mcp.CallToolResult, IngestOutput, error) {
	if s.ports.Pipeline == nil {
		return nil, IngestOutput{}, errNoPipeline
	}
	kbID, err := s.ownedKB(ctx, input.KBID)
	if err != nil {
		return nil, IngestOutput{}, err
	}

	docID := input.DocumentID
	rec := inbox.Record{
		KBID:       kbID.String(),
		DocumentID: &docID,
		Owner:      s.cfg.Principal,
		Title:      input.Title,
		Content:    input.Content,
		SourceType: input.SourceType,
		Summary:    input.Summary,
		Concepts:   make([]inbox.Concept, 0, len(input.Concepts)),
	}
	for _, c := range input.Concepts {
		rec.Concepts = append(rec.Concepts, inbox.Concept(c))
	}
	if err := rec.Validate(); err != nil {
		return nil, IngestOutput{}, err
	}

	status, err := s.ports.Pipeline.Ingest(ctx, rec.ToDomain())
	if err != nil {
		return nil, IngestOutput{}, err
	}
	return nil, IngestOutput{
		KBID:       status.KBID.String(),
		DocumentID: status.DocumentID,
		Stage:      status.Stage.String(),
	}, nil
}

// resolveKB returns kbID when set and owned by the principal, otherwise the
// principal's default knowledge base.
func (s *Server) resolveKB(ctx context.Context, kbID string) (domain.KBID, error) {
	if kbID != "" {
		return s.ownedKB(ctx, kbID)
	}
	if s.ports.KnowledgeBases == nil {
		return "", errNoKnowledgeBases
	}
	kb, err := s.ports.KnowledgeBases.Default(ctx, s.cfg.Principal)
	if err != nil {
		return "", fmt.Errorf("default knowledge base: %w", err)
	}
	return kb.ID, nil
}

// ownedKB rejects knowledge bases the principal does not own. Without a
// knowledge base service the id is trusted as given.
func (s *Server) ownedKB(ctx context.Context, kbID string) (domain.KBID, error) {
	id := domain.KBID(kbID)
	if id.IsZero() {
		return "", fmt.Errorf("%w: kb_id is required", domain.ErrInvalidInput)
	}
	if s.ports.KnowledgeBases == nil {
		return id, nil
	}
	kbs, err := s.ports.KnowledgeBases.List(ctx, s.cfg.Principal)
	if err != nil {
		return "", fmt.Errorf("list knowledge bases: %w", err)
	}
	for _, kb := range kbs {
		if kb.ID == id {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: knowledge base %s", domain.ErrNotFound, id)
}
