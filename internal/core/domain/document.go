package domain

import (
	"strings"
	"time"
)

// Stage is a document's position in the ingestion pipeline.
// Stages are strictly sequential.
type Stage string

// Pipeline stages in order.
const (
	StageUploaded      Stage = "uploaded"
	StageExtracted     Stage = "extracted"
	StageClustered     Stage = "clustered"
	StageSummarized    Stage = "summarized"
	StageSeedGenerated Stage = "seed_generated"
)

var stageOrder = []Stage{
	StageUploaded,
	StageExtracted,
	StageClustered,
	StageSummarized,
	StageSeedGenerated,
}

// IsValid returns true if the stage is recognised.
func (s Stage) IsValid() bool {
	return s.index() >= 0
}

// Next returns the stage that follows s, or "" for the final stage.
func (s Stage) Next() Stage {
	i := s.index()
	if i < 0 || i == len(stageOrder)-1 {
		return ""
	}
	return stageOrder[i+1]
}

// Prev returns the stage that precedes s, or "" for the first stage.
func (s Stage) Prev() Stage {
	i := s.index()
	if i <= 0 {
		return ""
	}
	return stageOrder[i-1]
}

// Before reports whether s comes strictly before other.
func (s Stage) Before(other Stage) bool {
	return s.index() < other.index()
}

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// StageFailure records a failed pipeline stage on the document itself.
type StageFailure struct {
	// Stage is the stage that failed.
	Stage Stage

	// Message describes the failure.
	Message string

	// At is when the failure was recorded.
	At time.Time
}

// Document is an ingested document. Its ID is unique only within its KB.
type Document struct {
	// KBID is the knowledge base that owns this document.
	KBID KBID

	// ID is the document identifier, unique within KBID only.
	ID int

	// Owner is the principal that uploaded the document.
	Owner string

	// Title is the human-readable title.
	Title string

	// Content is the raw content reference (extracted text).
	Content string

	// Summary is set once the Summarized stage succeeds.
	Summary string

	// ClusterID is nil until clustering completes.
	ClusterID *int

	// Stage is the last stage the document reached.
	Stage Stage

	// Failure is the most recent stage failure, if any.
	Failure *StageFailure

	// CreatedAt is when the document was ingested.
	CreatedAt time.Time

	// UpdatedAt is when the document last changed stage.
	UpdatedAt time.Time
}

// ExtractionFailed reports whether concept extraction failed for the document.
// Downstream stages never run for such documents.
func (d *Document) ExtractionFailed() bool {
	return d.Failure != nil && d.Failure.Stage == StageExtracted
}

// CanEnter reports whether the document may transition into stage.
// A stage can only be entered from its immediate predecessor, and nothing
// after extraction runs when extraction failed.
func (d *Document) CanEnter(stage Stage) bool {
	if !stage.IsValid() || stage == StageUploaded {
		return false
	}
	if d.ExtractionFailed() {
		return false
	}
	return d.Stage == stage.Prev()
}

// Advance moves the document into stage and clears any failure for it.
func (d *Document) Advance(stage Stage, now time.Time) {
	d.Stage = stage
	if d.Failure != nil && d.Failure.Stage == stage {
		d.Failure = nil
	}
	d.UpdatedAt = now
}

// Fail records a failure for stage without changing the reached stage.
func (d *Document) Fail(stage Stage, msg string, now time.Time) {
	d.Failure = &StageFailure{Stage: stage, Message: msg, At: now}
	d.UpdatedAt = now
}

// Excerpt returns the summary, or the content when no summary exists,
// truncated to max runes.
func (d *Document) Excerpt(maxRunes int) string {
	text := strings.TrimSpace(d.Summary)
	if text == "" {
		text = strings.TrimSpace(d.Content)
	}
	runes := []rune(text)
	if maxRunes > 0 && len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes])) + "…"
	}
	return text
}

// Concept is an extracted topical term with a confidence score.
type Concept struct {
	// Name is the term or phrase.
	Name string

	// Category groups concepts (e.g. "language", "technique").
	Category string

	// Confidence is the extraction confidence in [0, 1].
	Confidence float64

	// DocumentID back-references the source document.
	DocumentID int
}

// NormalizedName returns the concept name used for similarity and counting.
func (c Concept) NormalizedName() string {
	return strings.ToLower(strings.Join(strings.Fields(c.Name), " "))
}

// DocumentMetadata holds the typed ownership and concept data for a document.
type DocumentMetadata struct {
	// KBID is the knowledge base that owns the record.
	KBID KBID

	// DocumentID links to the Document in the same KB.
	DocumentID int

	// Owner is the principal that owns the document.
	Owner string

	// SourceType describes where the document came from (e.g. "pdf").
	SourceType string

	// Concepts are the concepts extracted from the document.
	Concepts []Concept
}

// ConceptNames returns the distinct normalised concept names.
func (m *DocumentMetadata) ConceptNames() []string {
	seen := make(map[string]struct{}, len(m.Concepts))
	names := make([]string, 0, len(m.Concepts))
	for _, c := range m.Concepts {
		name := c.NormalizedName()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
