// Package mcp provides an MCP (Model Context Protocol) server adapter for
// kbsynth. It lets AI assistants list quick ideas, run synthesis and feed
// documents into a knowledge base.
package mcp

import "errors"

var (
	// ErrMissingIdeaSeedService is returned when the idea seed service is not provided.
	ErrMissingIdeaSeedService = errors.New("mcp: idea seed service is required")

	// ErrMissingSynthesisService is returned when the synthesis service is not provided.
	ErrMissingSynthesisService = errors.New("mcp: synthesis service is required")

	// ErrMissingPrincipal is returned when the server has no principal to act as.
	ErrMissingPrincipal = errors.New("mcp: principal is required")

	errNoPipeline       = errors.New("ingestion is not available on this server")
	errNoKnowledgeBases = errors.New("knowledge base lookup is not available on this server")
)
