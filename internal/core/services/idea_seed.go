package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driving"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// Ensure IdeaSeedService implements the interface.
var _ driving.IdeaSeedService = (*IdeaSeedService)(nil)

const seedSummaryMaxRunes = 2000

// IdeaSeedService generates and lists per-document build idea seeds.
// It reads only the triggering document.
type IdeaSeedService struct {
	store     driven.KBStore
	seeds     driven.SeedStore
	llm       driven.LLMService
	prompts   driven.PromptStore
	telemetry driven.Telemetry
	locks     *keyedMutex[seedKey]
	now       func() time.Time
}

type seedKey struct {
	kb  domain.KBID
	doc int
}

// NewIdeaSeedService creates the idea seed track.
// llm may be nil, in which case Generate reports domain.ErrLLMUnavailable.
func NewIdeaSeedService(
	store driven.KBStore,
	seeds driven.SeedStore,
	llm driven.LLMService,
	prompts driven.PromptStore,
	telemetry driven.Telemetry,
) *IdeaSeedService {
	if telemetry == nil {
		telemetry = driven.NopTelemetry{}
	}
	return &IdeaSeedService{
		store:     store,
		seeds:     seeds,
		llm:       llm,
		prompts:   prompts,
		telemetry: telemetry,
		locks:     newKeyedMutex[seedKey](),
		now:       time.Now,
	}
}

// Generate produces 2 to 4 seeds for one summarized document.
func (s *IdeaSeedService) Generate(ctx context.Context, kbID domain.KBID, documentID int) (*domain.SeedGeneration, error) {
	unlock := s.locks.Lock(seedKey{kbID, documentID})
	defer unlock()

	done, err := s.seeds.Completed(ctx, kbID, documentID)
	if err != nil {
		return nil, fmt.Errorf("check seed marker: %w", err)
	}
	if done {
		return &domain.SeedGeneration{AlreadyCompleted: true}, nil
	}

	docs, err := s.store.Documents(ctx, kbID)
	if err != nil {
		return nil, err
	}
	doc, err := docs.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Stage != domain.StageSummarized && doc.Stage != domain.StageSeedGenerated {
		return nil, fmt.Errorf("%w: document %d at %s has no summary yet",
			domain.ErrStageOrder, documentID, doc.Stage)
	}
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	ctx, end := s.telemetry.StartSpan(ctx, "seeds.generate")
	seeds, err := s.requestSeeds(ctx, doc)
	end(err)
	if err != nil {
		s.recordFailure(ctx, kbID, documentID, err)
		return nil, fmt.Errorf("%w: document %d in kb %s: %w", domain.ErrSeedGeneration, documentID, kbID, err)
	}

	if err := s.seeds.Complete(ctx, kbID, documentID, seeds); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return &domain.SeedGeneration{AlreadyCompleted: true}, nil
		}
		return nil, fmt.Errorf("store seeds: %w", err)
	}

	err = s.store.Update(ctx, kbID, func(tx driven.PartitionTx) error {
		d, err := tx.Document(documentID)
		if err != nil {
			return err
		}
		if !d.CanEnter(domain.StageSeedGenerated) {
			return nil
		}
		d.Advance(domain.StageSeedGenerated, s.now())
		return tx.PutDocument(*d)
	})
	if err != nil {
		logger.Warn("seeds stored but stage update failed for document %d in kb %s: %v", documentID, kbID, err)
	}

	s.telemetry.StageCompleted(domain.StageSeedGenerated)
	s.telemetry.SeedsGenerated(len(seeds))
	logger.With("kb_id", kbID, "doc", documentID).Debugw("idea seeds generated", "count", len(seeds))

	return &domain.SeedGeneration{IdeasGenerated: len(seeds)}, nil
}

// List returns stored seeds of one knowledge base, newest first.
func (s *IdeaSeedService) List(ctx context.Context, kbID domain.KBID, filter domain.SeedFilter) ([]domain.BuildIdeaSeed, error) {
	if kbID.IsZero() {
		return nil, fmt.Errorf("%w: kb id is required", domain.ErrInvalidInput)
	}
	if filter.Difficulty != "" && !filter.Difficulty.IsValid() {
		return nil, fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidInput, filter.Difficulty)
	}
	return s.seeds.List(ctx, kbID, filter.Normalize())
}

type seedCandidate struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
}

func (s *IdeaSeedService) requestSeeds(ctx context.Context, doc *domain.Document) ([]domain.BuildIdeaSeed, error) {
	tmpl, err := s.prompts.Load(driven.PromptIdeaSeeds)
	if err != nil {
		return nil, fmt.Errorf("load prompt: %w", err)
	}
	prompt := fmt.Sprintf(tmpl, domain.MinSeedsPerDocument, domain.MaxSeedsPerDocument,
		doc.Excerpt(seedSummaryMaxRunes))

	raw, err := s.llm.Generate(ctx, prompt, driven.GenerateOptions{
		MaxTokens:   800,
		Temperature: 0.7,
		JSON:        true,
	})
	if err != nil {
		return nil, &domain.ProviderError{
			Provider: s.llm.ModelName(),
			Timeout:  errors.Is(err, context.DeadlineExceeded),
			Err:      err,
		}
	}

	candidates, err := decodeJSONList[seedCandidate](raw, "ideas", "seeds")
	if err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	return buildSeeds(doc, candidates, s.now())
}

// buildSeeds validates candidates into seeds, truncating past the maximum.
func buildSeeds(doc *domain.Document, candidates []seedCandidate, now time.Time) ([]domain.BuildIdeaSeed, error) {
	seeds := make([]domain.BuildIdeaSeed, 0, domain.MaxSeedsPerDocument)
	for _, c := range candidates {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			continue
		}
		difficulty, err := domain.ParseDifficulty(c.Difficulty)
		if err != nil {
			difficulty = domain.DifficultyIntermediate
		}
		seeds = append(seeds, domain.BuildIdeaSeed{
			KBID:        doc.KBID,
			DocumentID:  doc.ID,
			Index:       len(seeds),
			Title:       title,
			Description: strings.TrimSpace(c.Description),
			Difficulty:  difficulty,
			CreatedAt:   now,
		})
		if len(seeds) == domain.MaxSeedsPerDocument {
			break
		}
	}
	if len(seeds) < domain.MinSeedsPerDocument {
		return nil, fmt.Errorf("got %d usable ideas, need at least %d", len(seeds), domain.MinSeedsPerDocument)
	}
	return seeds, nil
}

// recordFailure keeps the failure for telemetry and marks the document.
// The document keeps its Summarized stage.
func (s *IdeaSeedService) recordFailure(ctx context.Context, kbID domain.KBID, documentID int, cause error) {
	now := s.now()
	msg := cause.Error()

	if err := s.seeds.RecordFailure(ctx, domain.SeedFailure{
		KBID:       kbID,
		DocumentID: documentID,
		Message:    msg,
		FailedAt:   now,
	}); err != nil {
		logger.Warn("record seed failure for document %d in kb %s: %v", documentID, kbID, err)
	}

	err := s.store.Update(ctx, kbID, func(tx driven.PartitionTx) error {
		d, err := tx.Document(documentID)
		if err != nil {
			return err
		}
		d.Fail(domain.StageSeedGenerated, msg, now)
		return tx.PutDocument(*d)
	})
	if err != nil {
		logger.Warn("mark seed failure on document %d in kb %s: %v", documentID, kbID, err)
	}

	s.telemetry.StageFailed(domain.StageSeedGenerated)
	logger.With("kb_id", kbID, "doc", documentID).Warnw("idea seed generation failed", "error", msg)
}
