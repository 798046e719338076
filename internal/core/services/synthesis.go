package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// Ensure SynthesisEngine implements the interface.
var _ driving.SynthesisService = (*SynthesisEngine)(nil)

// Limits on the composite knowledge summary.
const (
	excerptMaxRunes    = 300
	excerptMaxDocs     = 20
	topConceptsInBrief = 25
)

// SynthesisEngine builds cross-document suggestions from one principal's
// slice of their default knowledge base. It only reads: it has no seed store
// and never writes to the KB store.
type SynthesisEngine struct {
	kbs       driven.KnowledgeBaseStore
	store     driven.KBStore
	llm       driven.LLMService
	prompts   driven.PromptStore
	telemetry driven.Telemetry
	newID     func() string
}

// NewSynthesisEngine creates a synthesis engine. llm may be nil, in which
// case Synthesize reports domain.ErrLLMUnavailable once thresholds pass.
func NewSynthesisEngine(
	kbs driven.KnowledgeBaseStore,
	store driven.KBStore,
	llm driven.LLMService,
	prompts driven.PromptStore,
	telemetry driven.Telemetry,
) *SynthesisEngine {
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	return &SynthesisEngine{
		kbs:       kbs,
		store:     store,
		llm:       llm,
		prompts:   prompts,
		telemetry: telemetry,
		newID:     uuid.NewString,
	}
}

// Synthesize resolves the principal's default KB, reads only that KB,
// filters it to the principal and asks the LLM for suggestions.
func (e *SynthesisEngine) Synthesize(ctx context.Context, req domain.SynthesisRequest) (*domain.SynthesisResult, error) {
	req, err := req.Normalize()
	if err != nil {
		e.telemetry.SynthesisFinished(driven.OutcomeInvalid, 0)
		return nil, err
	}

	ctx, end := e.telemetry.StartSpan(ctx, "synthesis.synthesize")
	result, outcome, err := e.synthesize(ctx, req)
	end(err)

	filtered := 0
	if result != nil {
		filtered = result.Filtered
	}
	e.telemetry.SynthesisFinished(outcome, filtered)
	return result, err
}

func (e *SynthesisEngine) synthesize(ctx context.Context, req domain.SynthesisRequest) (*domain.SynthesisResult, string, error) {
	slice, err := e.slice(ctx, req.Principal)
	if err != nil {
		return nil, driven.OutcomeInvalid, err
	}

	if err := readinessOf(slice).Err(); err != nil {
		logger.Debug("synthesis: %s: %v", req.Principal, err)
		return nil, driven.OutcomeInsufficientKnowledge, err
	}
	if e.llm == nil {
		return nil, driven.OutcomeProviderError, domain.ErrLLMUnavailable
	}

	tmpl, err := e.prompts.Load(driven.PromptSynthesis)
	if err != nil {
		return nil, driven.OutcomeInvalid, fmt.Errorf("load prompt: %w", err)
	}

	requested := req.MaxSuggestions + domain.SuggestionOverRequest
	prompt := fmt.Sprintf(tmpl, requested, composeBrief(slice))

	raw, err := e.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   2000,
		Temperature: 0.7,
		JSON:        true,
	})
	if err != nil {
		return nil, driven.OutcomeProviderError, &domain.ProviderError{
			Provider: e.llm.ModelName(),
			Timeout:  errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
			Err:      err,
		}
	}

	candidates, err := parseSuggestions(raw)
	if err != nil {
		return nil, driven.OutcomeProviderError, &domain.ProviderError{
			Provider: e.llm.ModelName(),
			Err:      fmt.Errorf("malformed response: %w", err),
		}
	}

	kept, dropped := QualityFilter(candidates, req.MaxSuggestions)
	result := &domain.SynthesisResult{
		RequestID:           e.newID(),
		KBID:                slice.kb,
		Principal:           req.Principal,
		Suggestions:         kept,
		CandidatesRequested: requested,
		CandidatesReceived:  len(candidates),
		Filtered:            dropped,
	}
	logger.With("kb_id", slice.kb, "request_id", result.RequestID).
		Debugw("synthesis finished", "received", len(candidates), "kept", len(kept), "filtered", dropped)

	if len(kept) == 0 {
		return result, driven.OutcomeFilteredEmpty, domain.ErrQualityFilterEmpty
	}
	return result, driven.OutcomeSuccess, nil
}

// Readiness reports the principal's threshold counts without calling the LLM.
func (e *SynthesisEngine) Readiness(ctx context.Context, principal string) (*domain.Readiness, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, fmt.Errorf("%w: principal is required", domain.ErrInvalidInput)
	}
	slice, err := e.slice(ctx, principal)
	if err != nil {
		return nil, err
	}
	r := readinessOf(slice)
	return &r, nil
}

// slice resolves the principal's default KB, reads its partitions and keeps
// only the principal's records. Nothing outside that one KB is read.
func (e *SynthesisEngine) slice(ctx context.Context, principal string) (*principalSlice, error) {
	kb, err := e.kbs.DefaultFor(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("resolve default kb: %w", err)
	}

	return readPrincipalSlice(ctx, e.store, kb.ID, principal)
}

type conceptCount struct {
	name  string
	count int
}

// composeBrief renders the knowledge summary handed to the LLM.
func composeBrief(s *principalSlice) string {
	var b strings.Builder

	b.WriteString("## Clusters\n")
	for _, c := range s.clusters {
		fmt.Fprintf(&b, "- %s (%d documents)", c.Name, len(c.DocIDs))
		if len(c.PrimaryConcepts) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(c.PrimaryConcepts, ", "))
		}
		b.WriteByte('\n')
	}

	counts := make(map[string]int)
	for _, meta := range s.metadata {
		for _, name := range meta.ConceptNames() {
			counts[name]++
		}
	}
	ranked := make([]conceptCount, 0, len(counts))
	for name, n := range counts {
		ranked = append(ranked, conceptCount{name, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	if len(ranked) > topConceptsInBrief {
		ranked = ranked[:topConceptsInBrief]
	}
	b.WriteString("\n## Top concepts\n")
	for _, c := range ranked {
		fmt.Fprintf(&b, "- %s (%d)\n", c.name, c.count)
	}

	docs := make([]domain.Document, len(s.documents))
	copy(docs, s.documents)
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	if len(docs) > excerptMaxDocs {
		docs = docs[:excerptMaxDocs]
	}
	b.WriteString("\n## Documents\n")
	for i := range docs {
		title := docs[i].Title
		if title == "" {
			title = fmt.Sprintf("document %d", docs[i].ID)
		}
		fmt.Fprintf(&b, "- %s: %s\n", title, docs[i].Excerpt(excerptMaxRunes))
	}

	return b.String()
}

type suggestionCandidate struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Coverage     string   `json:"knowledge_coverage"`
	ConceptsUsed []string `json:"concepts_used"`
	ClusterNames []string `json:"source_clusters"`
}

func parseSuggestions(raw string) ([]domain.Suggestion, error) {
	candidates, err := decodeJSONList[suggestionCandidate](raw, "suggestions", "ideas")
	if err != nil {
		return nil, err
	}
	suggestions := make([]domain.Suggestion, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, domain.Suggestion{
			Title:        strings.TrimSpace(c.Title),
			Description:  strings.TrimSpace(c.Description),
			Coverage:     domain.ParseCoverage(c.Coverage),
			ConceptsUsed: c.ConceptsUsed,
			ClusterNames: c.ClusterNames,
		})
	}
	return suggestions, nil
}
