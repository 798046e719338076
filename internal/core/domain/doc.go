// Package domain defines the core business entities for kbsynth.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - KnowledgeBase: A tenant-scoped partition owned by a principal
//   - Document / DocumentMetadata: Ingested content and its concepts
//   - Cluster: A KB-local grouping of documents sharing concepts
//   - BuildIdeaSeed: A cheap, per-document candidate build idea
//   - Suggestion: A synthesized, quality-filtered build suggestion
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
