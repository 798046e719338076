package driven

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// SeedStore persists build idea seeds and their per-document completion
// markers. Keys are (kb, document, seed index).
type SeedStore interface {
	// Completed reports whether seed generation already succeeded for the document.
	Completed(ctx context.Context, kbID domain.KBID, documentID int) (bool, error)

	// Complete atomically writes the seeds and the completion marker.
	// Returns domain.ErrAlreadyExists, writing nothing, if the marker exists.
	Complete(ctx context.Context, kbID domain.KBID, documentID int, seeds []domain.BuildIdeaSeed) error

	// RecordFailure keeps a failed attempt for telemetry.
	RecordFailure(ctx context.Context, failure domain.SeedFailure) error

	// Failures returns recorded failures for a document, most recent first.
	Failures(ctx context.Context, kbID domain.KBID, documentID int) ([]domain.SeedFailure, error)

	// List returns seeds of one KB, newest first.
	List(ctx context.Context, kbID domain.KBID, filter domain.SeedFilter) ([]domain.BuildIdeaSeed, error)

	// Count returns the number of seeds stored for one KB.
	Count(ctx context.Context, kbID domain.KBID) (int, error)
}
