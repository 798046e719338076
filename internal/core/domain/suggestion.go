package domain

import "strings"

// Coverage is the provider's self-reported confidence that a suggestion is
// grounded in the principal's corpus.
type Coverage string

// Coverage levels.
const (
	CoverageLow    Coverage = "low"
	CoverageMedium Coverage = "medium"
	CoverageHigh   Coverage = "high"
)

// ParseCoverage normalises s. Unrecognised values are treated as low.
func ParseCoverage(s string) Coverage {
	switch c := Coverage(strings.ToLower(strings.TrimSpace(s))); c {
	case CoverageMedium, CoverageHigh:
		return c
	default:
		return CoverageLow
	}
}

// Acceptable reports whether the coverage passes the quality filter.
func (c Coverage) Acceptable() bool {
	return c == CoverageMedium || c == CoverageHigh
}

// String returns the string representation.
func (c Coverage) String() string {
	return string(c)
}

// Suggestion is one synthesized build suggestion.
type Suggestion struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Coverage     Coverage `json:"knowledge_coverage"`
	ConceptsUsed []string `json:"concepts_used,omitempty"`
	ClusterNames []string `json:"source_clusters,omitempty"`
}

// Synthesis bounds.
const (
	DefaultMaxSuggestions = 5
	MaxSuggestionsLimit   = 10

	// SuggestionOverRequest is how many extra candidates are requested from
	// the provider to compensate for quality filtering.
	SuggestionOverRequest = 3
)

// SynthesisRequest asks for suggestions drawn from one principal's corpus.
type SynthesisRequest struct {
	Principal      string
	MaxSuggestions int
}

// Normalize applies the default and validates bounds.
func (r SynthesisRequest) Normalize() (SynthesisRequest, error) {
	if strings.TrimSpace(r.Principal) == "" {
		return r, invalid("principal is required")
	}
	if r.MaxSuggestions == 0 {
		r.MaxSuggestions = DefaultMaxSuggestions
	}
	if r.MaxSuggestions < 1 || r.MaxSuggestions > MaxSuggestionsLimit {
		return r, invalid("max suggestions must be between 1 and 10")
	}
	return r, nil
}

// SynthesisResult is the transient, never persisted synthesis outcome.
type SynthesisResult struct {
	RequestID           string       `json:"request_id"`
	KBID                KBID         `json:"kb_id"`
	Principal           string       `json:"principal"`
	Suggestions         []Suggestion `json:"suggestions"`
	CandidatesRequested int          `json:"candidates_requested"`
	CandidatesReceived  int          `json:"candidates_received"`
	Filtered            int          `json:"filtered"`
}

// Synthesis thresholds for one principal within one KB.
const (
	MinSynthesisDocuments = 5
	MinSynthesisConcepts  = 10
	MinSynthesisClusters  = 1
)

// Readiness reports a principal's progress towards the synthesis thresholds.
type Readiness struct {
	KBID      KBID `json:"kb_id"`
	Documents int  `json:"documents"`
	Concepts  int  `json:"concepts"`
	Clusters  int  `json:"clusters"`
}

// Ready reports whether every threshold is met.
func (r Readiness) Ready() bool {
	return r.Documents >= MinSynthesisDocuments &&
		r.Concepts >= MinSynthesisConcepts &&
		r.Clusters >= MinSynthesisClusters
}

// Err returns an InsufficientKnowledgeError when a threshold is unmet.
func (r Readiness) Err() error {
	if r.Ready() {
		return nil
	}
	return &InsufficientKnowledgeError{
		Documents:    r.Documents,
		Concepts:     r.Concepts,
		Clusters:     r.Clusters,
		MinDocuments: MinSynthesisDocuments,
		MinConcepts:  MinSynthesisConcepts,
		MinClusters:  MinSynthesisClusters,
	}
}
