package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// Ensure SeedStore implements the interface.
var _ driven.SeedStore = (*SeedStore)(nil)

// SeedStore is an in-memory implementation of driven.SeedStore.
// Seeds live in one partition per knowledge base with its own lock.
type SeedStore struct {
	mu         sync.RWMutex
	partitions map[domain.KBID]*seedPartition
}

// seedPartition holds the seeds, markers and failures of one KB, keyed by
// document id.
type seedPartition struct {
	mu       sync.RWMutex
	seeds    map[int][]domain.BuildIdeaSeed
	markers  map[int]struct{}
	failures map[int][]domain.SeedFailure
}

// NewSeedStore creates a new in-memory seed store.
func NewSeedStore() *SeedStore {
	return &SeedStore{partitions: make(map[domain.KBID]*seedPartition)}
}

// lookup returns the partition of kbID, or nil when nothing was stored yet.
func (s *SeedStore) lookup(kbID domain.KBID) *seedPartition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.partitions[kbID]
}

// partition returns the partition of kbID, creating it when absent.
func (s *SeedStore) partition(kbID domain.KBID) *seedPartition {
	if p := s.lookup(kbID); p != nil {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partitions[kbID]
	if !ok {
		p = &seedPartition{
			seeds:    make(map[int][]domain.BuildIdeaSeed),
			markers:  make(map[int]struct{}),
			failures: make(map[int][]domain.SeedFailure),
		}
		s.partitions[kbID] = p
	}
	return p
}

// Completed reports whether seed generation already succeeded for the document.
func (s *SeedStore) Completed(_ context.Context, kbID domain.KBID, documentID int) (bool, error) {
	p := s.lookup(kbID)
	if p == nil {
		return false, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.markers[documentID]
	return ok, nil
}

// Complete writes the seeds and the completion marker together.
func (s *SeedStore) Complete(_ context.Context, kbID domain.KBID, documentID int, seeds []domain.BuildIdeaSeed) error {
	if kbID.IsZero() {
		return fmt.Errorf("complete seeds: %w: empty kb id", domain.ErrInvalidInput)
	}
	stored := make([]domain.BuildIdeaSeed, len(seeds))
	for i, seed := range seeds {
		if err := domain.Stamp(kbID, &seed.KBID); err != nil {
			return err
		}
		if seed.DocumentID != documentID {
			return fmt.Errorf("%w: seed of document %d completed under document %d",
				domain.ErrInvalidInput, seed.DocumentID, documentID)
		}
		stored[i] = seed
	}

	p := s.partition(kbID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.markers[documentID]; ok {
		return fmt.Errorf("seeds for document %d in kb %s: %w", documentID, kbID, domain.ErrAlreadyExists)
	}
	p.seeds[documentID] = stored
	p.markers[documentID] = struct{}{}
	return nil
}

// RecordFailure keeps a failed attempt.
func (s *SeedStore) RecordFailure(_ context.Context, failure domain.SeedFailure) error {
	if failure.KBID.IsZero() {
		return fmt.Errorf("record seed failure: %w: empty kb id", domain.ErrInvalidInput)
	}
	p := s.partition(failure.KBID)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[failure.DocumentID] = append(p.failures[failure.DocumentID], failure)
	return nil
}

// Failures returns recorded failures for a document, most recent first.
func (s *SeedStore) Failures(_ context.Context, kbID domain.KBID, documentID int) ([]domain.SeedFailure, error) {
	p := s.lookup(kbID)
	if p == nil {
		return nil, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	failures := slices.Clone(p.failures[documentID])
	slices.Reverse(failures)
	return failures, nil
}

// List returns seeds of one KB, newest first.
func (s *SeedStore) List(_ context.Context, kbID domain.KBID, filter domain.SeedFilter) ([]domain.BuildIdeaSeed, error) {
	filter = filter.Normalize()
	p := s.lookup(kbID)
	if p == nil {
		return nil, nil
	}

	p.mu.RLock()
	var seeds []domain.BuildIdeaSeed
	for _, docSeeds := range p.seeds {
		for _, seed := range docSeeds {
			if filter.Difficulty != "" && seed.Difficulty != filter.Difficulty {
				continue
			}
			seeds = append(seeds, seed)
		}
	}
	p.mu.RUnlock()

	sortSeedsNewestFirst(seeds)
	if len(seeds) > filter.Limit {
		seeds = seeds[:filter.Limit]
	}
	return seeds, nil
}

// Count returns the number of seeds stored for one KB.
func (s *SeedStore) Count(_ context.Context, kbID domain.KBID) (int, error) {
	p := s.lookup(kbID)
	if p == nil {
		return 0, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, docSeeds := range p.seeds {
		n += len(docSeeds)
	}
	return n, nil
}

// sortSeedsNewestFirst orders by creation time, newest first. Ties break on
// the later document, then the lower seed index.
func sortSeedsNewestFirst(seeds []domain.BuildIdeaSeed) {
	sort.Slice(seeds, func(i, j int) bool {
		a, b := seeds[i], seeds[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID > b.DocumentID
		}
		return a.Index < b.Index
	})
}
