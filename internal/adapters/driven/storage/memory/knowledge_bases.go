package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// Ensure KnowledgeBaseStore implements the interface.
var _ driven.KnowledgeBaseStore = (*KnowledgeBaseStore)(nil)

// KnowledgeBaseStore is an in-memory implementation of driven.KnowledgeBaseStore.
type KnowledgeBaseStore struct {
	mu  sync.RWMutex
	kbs map[domain.KBID]domain.KnowledgeBase
}

// NewKnowledgeBaseStore creates a new in-memory knowledge base registry.
func NewKnowledgeBaseStore() *KnowledgeBaseStore {
	return &KnowledgeBaseStore{
		kbs: make(map[domain.KBID]domain.KnowledgeBase),
	}
}

// Create stores a new knowledge base.
func (s *KnowledgeBaseStore) Create(_ context.Context, kb domain.KnowledgeBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.kbs[kb.ID]; ok {
		return fmt.Errorf("kb %s: %w", kb.ID, domain.ErrAlreadyExists)
	}
	if kb.Default {
		s.clearDefault(kb.Owner)
	}
	s.kbs[kb.ID] = kb
	return nil
}

// Get retrieves a knowledge base by ID.
func (s *KnowledgeBaseStore) Get(_ context.Context, id domain.KBID) (*domain.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kb, ok := s.kbs[id]
	if !ok {
		return nil, fmt.Errorf("kb %s: %w", id, domain.ErrNotFound)
	}
	return &kb, nil
}

// DefaultFor returns the principal's default knowledge base.
func (s *KnowledgeBaseStore) DefaultFor(_ context.Context, principal string) (*domain.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, kb := range s.kbs {
		if kb.Owner == principal && kb.Default {
			return &kb, nil
		}
	}
	return nil, fmt.Errorf("default kb for %q: %w", principal, domain.ErrNotFound)
}

// SetDefault makes id the principal's only default knowledge base.
func (s *KnowledgeBaseStore) SetDefault(_ context.Context, principal string, id domain.KBID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.kbs[id]
	if !ok || kb.Owner != principal {
		return fmt.Errorf("kb %s of %q: %w", id, principal, domain.ErrNotFound)
	}
	s.clearDefault(principal)
	kb.Default = true
	s.kbs[id] = kb
	return nil
}

// ListFor returns the knowledge bases owned by principal, oldest first.
func (s *KnowledgeBaseStore) ListFor(_ context.Context, principal string) ([]domain.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var kbs []domain.KnowledgeBase
	for _, kb := range s.kbs {
		if kb.Owner == principal {
			kbs = append(kbs, kb)
		}
	}
	sort.Slice(kbs, func(i, j int) bool {
		if kbs[i].CreatedAt.Equal(kbs[j].CreatedAt) {
			return kbs[i].ID < kbs[j].ID
		}
		return kbs[i].CreatedAt.Before(kbs[j].CreatedAt)
	})
	return kbs, nil
}

// clearDefault unsets the principal's default. Caller holds s.mu.
func (s *KnowledgeBaseStore) clearDefault(principal string) {
	for id, kb := range s.kbs {
		if kb.Owner == principal && kb.Default {
			kb.Default = false
			s.kbs[id] = kb
		}
	}
}
