package mcp

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// mockKnowledgeBaseService is a mock implementation of driving.KnowledgeBaseService.
type mockKnowledgeBaseService struct {
	kbs   []domain.KnowledgeBase
	stats *domain.KBStats
	err   error

	statsPrincipal string
}

func (m *mockKnowledgeBaseService) Create(_ context.Context, principal string, makeDefault bool) (*domain.KnowledgeBase, error) {
	return &domain.KnowledgeBase{ID: "new", Owner: principal, Default: makeDefault}, m.err
}

func (m *mockKnowledgeBaseService) EnsureKB(_ context.Context, _ domain.KBID) error {
	return m.err
}

func (m *mockKnowledgeBaseService) Default(_ context.Context, principal string) (*domain.KnowledgeBase, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.kbs {
		if m.kbs[i].Owner == principal && m.kbs[i].Default {
			return &m.kbs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockKnowledgeBaseService) SetDefault(_ context.Context, _ string, _ domain.KBID) error {
	return m.err
}

func (m *mockKnowledgeBaseService) List(_ context.Context, principal string) ([]domain.KnowledgeBase, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.KnowledgeBase
	for _, kb := range m.kbs {
		if kb.Owner == principal {
			out = append(out, kb)
		}
	}
	return out, nil
}

func (m *mockKnowledgeBaseService) Stats(_ context.Context, _ domain.KBID, principal string) (*domain.KBStats, error) {
	m.statsPrincipal = principal
	return m.stats, m.err
}

// mockIdeaSeedService is a mock implementation of driving.IdeaSeedService.
type mockIdeaSeedService struct {
	seeds []domain.BuildIdeaSeed
	gen   *domain.SeedGeneration
	err   error

	listedKB   domain.KBID
	listFilter domain.SeedFilter
	generated  []int
}

func (m *mockIdeaSeedService) Generate(_ context.Context, _ domain.KBID, documentID int) (*domain.SeedGeneration, error) {
	m.generated = append(m.generated, documentID)
	return m.gen, m.err
}

func (m *mockIdeaSeedService) List(_ context.Context, kbID domain.KBID, filter domain.SeedFilter) ([]domain.BuildIdeaSeed, error) {
	m.listedKB = kbID
	m.listFilter = filter
	return m.seeds, m.err
}

// mockSynthesisService is a mock implementation of driving.SynthesisService.
type mockSynthesisService struct {
	result    *domain.SynthesisResult
	readiness *domain.Readiness
	err       error

	lastRequest domain.SynthesisRequest
	hadDeadline bool
}

func (m *mockSynthesisService) Synthesize(ctx context.Context, req domain.SynthesisRequest) (*domain.SynthesisResult, error) {
	m.lastRequest = req
	_, m.hadDeadline = ctx.Deadline()
	return m.result, m.err
}

func (m *mockSynthesisService) Readiness(_ context.Context, _ string) (*domain.Readiness, error) {
	return m.readiness, m.err
}

// mockPipelineService is a mock implementation of driving.PipelineService.
type mockPipelineService struct {
	err      error
	ingested []domain.IngestRecord
}

func (m *mockPipelineService) Ingest(_ context.Context, record domain.IngestRecord) (*domain.DocumentStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.ingested = append(m.ingested, record)
	return &domain.DocumentStatus{
		KBID:       record.KBID,
		DocumentID: record.DocumentID,
		Stage:      domain.StageExtracted,
	}, nil
}

func (m *mockPipelineService) IngestBatch(ctx context.Context, records []domain.IngestRecord) ([]domain.DocumentStatus, error) {
	out := make([]domain.DocumentStatus, 0, len(records))
	for _, r := range records {
		st, err := m.Ingest(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (m *mockPipelineService) Notify(_ context.Context, _ domain.StageTransition) error {
	return m.err
}

func (m *mockPipelineService) Retry(_ context.Context, kbID domain.KBID, documentID int) (*domain.DocumentStatus, error) {
	return &domain.DocumentStatus{KBID: kbID, DocumentID: documentID}, m.err
}

func (m *mockPipelineService) RetryKB(_ context.Context, _ domain.KBID) ([]domain.DocumentStatus, error) {
	return nil, m.err
}

func (m *mockPipelineService) Status(_ context.Context, kbID domain.KBID, documentID int) (*domain.DocumentStatus, error) {
	return &domain.DocumentStatus{KBID: kbID, DocumentID: documentID}, m.err
}

func (m *mockPipelineService) Start(_ context.Context) error { return nil }
func (m *mockPipelineService) Stop()                         {}
func (m *mockPipelineService) Wait()                         {}
