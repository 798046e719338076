package driving

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// KnowledgeBaseService manages knowledge bases and their partitions.
type KnowledgeBaseService interface {
	// Create allocates a new knowledge base for principal and ensures its
	// partitions. When makeDefault is set, or the principal has no default
	// yet, it becomes the principal's default.
	Create(ctx context.Context, principal string, makeDefault bool) (*domain.KnowledgeBase, error)

	// EnsureKB creates the partitions of an existing knowledge base ID.
	// It is idempotent.
	EnsureKB(ctx context.Context, kbID domain.KBID) error

	// Default returns the principal's default knowledge base.
	Default(ctx context.Context, principal string) (*domain.KnowledgeBase, error)

	// SetDefault makes kbID the principal's default knowledge base.
	SetDefault(ctx context.Context, principal string, kbID domain.KBID) error

	// List returns the knowledge bases owned by principal.
	List(ctx context.Context, principal string) ([]domain.KnowledgeBase, error)

	// Stats counts the principal's slice of one knowledge base.
	Stats(ctx context.Context, kbID domain.KBID, principal string) (*domain.KBStats, error)
}
