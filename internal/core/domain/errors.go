package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIsolationViolation indicates code tried to mix records of different
	// knowledge bases in one partition or one mapping.
	// It must never surface in normal operation.
	ErrIsolationViolation = errors.New("knowledge base isolation violation")

	// ErrStageOrder indicates a pipeline stage was entered out of order.
	ErrStageOrder = errors.New("pipeline stage out of order")

	// ErrInsufficientKnowledge indicates the principal's corpus is below the
	// synthesis thresholds. This is an expected outcome, not a fault.
	ErrInsufficientKnowledge = errors.New("insufficient knowledge")

	// ErrLLMProvider indicates a transient provider failure or timeout.
	ErrLLMProvider = errors.New("LLM provider error")

	// ErrLLMRejected indicates the provider refused the request itself,
	// for example a bad key or unknown model. Retrying cannot help.
	ErrLLMRejected = errors.New("LLM provider rejected the request")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Seed generation, summarisation and synthesis are disabled.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrQualityFilterEmpty indicates every synthesized candidate was
	// dropped by the quality filter.
	ErrQualityFilterEmpty = errors.New("quality filter removed all suggestions")

	// ErrSeedGeneration indicates a per-document idea seed job failed.
	// It is logged and recorded, never propagated to the ingestion pipeline.
	ErrSeedGeneration = errors.New("seed generation failed")
)

// InsufficientKnowledgeError reports which synthesis thresholds were unmet.
type InsufficientKnowledgeError struct {
	Documents    int
	Concepts     int
	Clusters     int
	MinDocuments int
	MinConcepts  int
	MinClusters  int
}

// Error implements error.
func (e *InsufficientKnowledgeError) Error() string {
	return fmt.Sprintf("%s: have %d documents (need %d), %d concepts (need %d), %d clusters (need %d)",
		ErrInsufficientKnowledge, e.Documents, e.MinDocuments, e.Concepts, e.MinConcepts,
		e.Clusters, e.MinClusters)
}

// Unwrap allows errors.Is(err, ErrInsufficientKnowledge).
func (e *InsufficientKnowledgeError) Unwrap() error {
	return ErrInsufficientKnowledge
}

// ProviderError wraps a failure of the LLM provider.
type ProviderError struct {
	// Provider is the model or vendor name, when known.
	Provider string

	// Timeout is set when the call hit its deadline.
	Timeout bool

	// Err is the underlying failure.
	Err error
}

// Error implements error.
func (e *ProviderError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s %s: %v", ErrLLMProvider, e.Provider, kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrLLMProvider, kind, e.Err)
}

// Unwrap exposes both ErrLLMProvider and the underlying cause to errors.Is.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrLLMProvider, e.Err}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func isolation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIsolationViolation, fmt.Sprintf(format, args...))
}
