package driving

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// IdeaSeedService is the cheap, precomputed suggestion track.
type IdeaSeedService interface {
	// Generate produces seeds for one summarized document.
	// Calling it again after success writes nothing and reports
	// AlreadyCompleted.
	Generate(ctx context.Context, kbID domain.KBID, documentID int) (*domain.SeedGeneration, error)

	// List returns stored seeds of one knowledge base, newest first.
	// It never calls the LLM.
	List(ctx context.Context, kbID domain.KBID, filter domain.SeedFilter) ([]domain.BuildIdeaSeed, error)
}
