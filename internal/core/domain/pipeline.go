package domain

import "strings"

// IngestRecord is what the external ingestion layer hands over per document.
type IngestRecord struct {
	KBID       KBID
	DocumentID int
	Owner      string
	Title      string
	Content    string
	SourceType string
	Concepts   []Concept

	// Summary may be supplied when the ingestion layer already summarised
	// the document. The pipeline then skips its own summarisation.
	Summary string

	// ExtractionError is set when concept extraction failed upstream.
	ExtractionError string
}

// Validate checks the record is well formed.
func (r *IngestRecord) Validate() error {
	switch {
	case r.KBID.IsZero():
		return invalid("kb id is required")
	case r.DocumentID < 0:
		return invalid("document id must not be negative")
	case strings.TrimSpace(r.Owner) == "":
		return invalid("owner is required")
	}
	for _, c := range r.Concepts {
		if strings.TrimSpace(c.Name) == "" {
			return invalid("concept name is required")
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return invalid("concept confidence must be within [0, 1]")
		}
	}
	return nil
}

// StageTransition is the external notification that a document reached
// (or failed) a stage handled outside the core.
type StageTransition struct {
	KBID       KBID
	DocumentID int
	Stage      Stage

	// Summary carries the summary text on a successful Summarized transition.
	Summary string

	// Err is non-empty when the stage failed.
	Err string
}

// Succeeded reports whether the transition reports success.
func (t StageTransition) Succeeded() bool {
	return t.Err == ""
}

// DocumentStatus is the observable pipeline state of one document.
type DocumentStatus struct {
	KBID       KBID
	DocumentID int
	Stage      Stage
	ClusterID  *int
	Failure    *StageFailure
	SeedsReady bool
}
