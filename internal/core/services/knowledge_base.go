package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
)

// Ensure KnowledgeBaseService implements the interface.
var _ driving.KnowledgeBaseService = (*KnowledgeBaseService)(nil)

// KnowledgeBaseService manages knowledge bases and their partitions.
type KnowledgeBaseService struct {
	kbs   driven.KnowledgeBaseStore
	store driven.KBStore
	seeds driven.SeedStore
	newID func() domain.KBID
	now   func() time.Time
}

// NewKnowledgeBaseService creates a knowledge base service.
func NewKnowledgeBaseService(kbs driven.KnowledgeBaseStore, store driven.KBStore, seeds driven.SeedStore) *KnowledgeBaseService {
	return &KnowledgeBaseService{
		kbs:   kbs,
		store: store,
		seeds: seeds,
		newID: newKBID,
		now:   time.Now,
	}
}

// newKBID returns a dash-less UUID.
func newKBID() domain.KBID {
	return domain.KBID(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Create allocates a new knowledge base for principal.
func (s *KnowledgeBaseService) Create(ctx context.Context, principal string, makeDefault bool) (*domain.KnowledgeBase, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, fmt.Errorf("%w: principal is required", domain.ErrInvalidInput)
	}

	if !makeDefault {
		_, err := s.kbs.DefaultFor(ctx, principal)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			makeDefault = true
		case err != nil:
			return nil, err
		}
	}

	kb := domain.KnowledgeBase{
		ID:        s.newID(),
		Owner:     principal,
		Default:   makeDefault,
		CreatedAt: s.now(),
	}
	if err := s.store.EnsureKB(ctx, kb.ID); err != nil {
		return nil, fmt.Errorf("ensure kb partitions: %w", err)
	}
	if err := s.kbs.Create(ctx, kb); err != nil {
		return nil, fmt.Errorf("create kb: %w", err)
	}
	return &kb, nil
}

// EnsureKB creates the partitions of kbID. It is idempotent.
func (s *KnowledgeBaseService) EnsureKB(ctx context.Context, kbID domain.KBID) error {
	if kbID.IsZero() {
		return fmt.Errorf("%w: kb id is required", domain.ErrInvalidInput)
	}
	return s.store.EnsureKB(ctx, kbID)
}

// Default returns the principal's default knowledge base.
func (s *KnowledgeBaseService) Default(ctx context.Context, principal string) (*domain.KnowledgeBase, error) {
	return s.kbs.DefaultFor(ctx, principal)
}

// SetDefault makes kbID the principal's default knowledge base.
func (s *KnowledgeBaseService) SetDefault(ctx context.Context, principal string, kbID domain.KBID) error {
	return s.kbs.SetDefault(ctx, principal, kbID)
}

// List returns the knowledge bases owned by principal.
func (s *KnowledgeBaseService) List(ctx context.Context, principal string) ([]domain.KnowledgeBase, error) {
	return s.kbs.ListFor(ctx, principal)
}

// Stats counts the principal's documents, clusters and distinct concepts in
// one knowledge base, plus the seeds stored for it.
func (s *KnowledgeBaseService) Stats(ctx context.Context, kbID domain.KBID, principal string) (*domain.KBStats, error) {
	slice, err := readPrincipalSlice(ctx, s.store, kbID, principal)
	if err != nil {
		return nil, err
	}
	r := readinessOf(slice)

	stats := &domain.KBStats{
		KBID:      kbID,
		Principal: principal,
		Documents: r.Documents,
		Clusters:  r.Clusters,
		Concepts:  r.Concepts,
	}
	if s.seeds != nil {
		if stats.Seeds, err = s.seeds.Count(ctx, kbID); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
