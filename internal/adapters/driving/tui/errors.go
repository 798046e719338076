package tui

import "errors"

var (
	// ErrMissingKnowledgeBaseService is returned when the knowledge base service is not provided.
	ErrMissingKnowledgeBaseService = errors.New("tui: knowledge base service is required")

	// ErrMissingIdeaSeedService is returned when the idea seed service is not provided.
	ErrMissingIdeaSeedService = errors.New("tui: idea seed service is required")

	// ErrMissingSynthesisService is returned when the synthesis service is not provided.
	ErrMissingSynthesisService = errors.New("tui: synthesis service is required")

	// ErrMissingPrincipal is returned when no principal is given.
	ErrMissingPrincipal = errors.New("tui: principal is required")
)
