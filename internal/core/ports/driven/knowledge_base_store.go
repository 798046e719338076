package driven

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// KnowledgeBaseStore persists knowledge base records and each principal's
// default knowledge base.
type KnowledgeBaseStore interface {
	// Create stores a new knowledge base.
	// Returns domain.ErrAlreadyExists if the ID is taken. When kb.Default is
	// set any previous default of the owner is cleared.
	Create(ctx context.Context, kb domain.KnowledgeBase) error

	// Get retrieves a knowledge base by ID.
	Get(ctx context.Context, id domain.KBID) (*domain.KnowledgeBase, error)

	// DefaultFor returns the principal's default knowledge base.
	// Returns domain.ErrNotFound if the principal has none.
	DefaultFor(ctx context.Context, principal string) (*domain.KnowledgeBase, error)

	// SetDefault makes id the principal's only default knowledge base.
	SetDefault(ctx context.Context, principal string, id domain.KBID) error

	// ListFor returns the knowledge bases owned by principal.
	ListFor(ctx context.Context, principal string) ([]domain.KnowledgeBase, error)
}
