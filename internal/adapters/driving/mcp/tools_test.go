package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

func newTestServer(t *testing.T, ports *Ports, cfg Config) *Server {
	t.Helper()
	if cfg.Principal == "" {
		cfg.Principal = "alice"
	}
	if ports.IdeaSeeds == nil {
		ports.IdeaSeeds = &mockIdeaSeedService{}
	}
	if ports.Synthesis == nil {
		ports.Synthesis = &mockSynthesisService{}
	}
	server, err := NewServer(ports, cfg)
	require.NoError(t, err)
	return server
}

func aliceKBs() *mockKnowledgeBaseService {
	return &mockKnowledgeBaseService{kbs: []domain.KnowledgeBase{
		{ID: "kb-alice", Owner: "alice", Default: true},
		{ID: "kb-alice-2", Owner: "alice"},
		{ID: "kb-bob", Owner: "bob", Default: true},
	}}
}

func TestServer_handleListIdeas(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("defaults to the principal's default knowledge base", func(t *testing.T) {
		seeds := &mockIdeaSeedService{seeds: []domain.BuildIdeaSeed{
			{KBID: "kb-alice", DocumentID: 7, Title: "CLI", Description: "A tool", Difficulty: domain.DifficultyBeginner, CreatedAt: created},
		}}
		server := newTestServer(t, &Ports{KnowledgeBases: aliceKBs(), IdeaSeeds: seeds}, Config{})

		_, output, err := server.handleListIdeas(ctx, nil, ListIdeasInput{Difficulty: "beginner", Limit: 5})

		require.NoError(t, err)
		assert.Equal(t, domain.KBID("kb-alice"), seeds.listedKB)
		assert.Equal(t, domain.SeedFilter{Difficulty: domain.DifficultyBeginner, Limit: 5}, seeds.listFilter)
		assert.Equal(t, "kb-alice", output.KBID)
		require.Equal(t, 1, output.Count)
		assert.Equal(t, "CLI", output.Ideas[0].Title)
		assert.Equal(t, "beginner", output.Ideas[0].Difficulty)
		assert.Equal(t, "2026-03-01T12:00:00Z", output.Ideas[0].CreatedAt)
	})

	t.Run("explicit knowledge base must be owned", func(t *testing.T) {
		seeds := &mockIdeaSeedService{}
		server := newTestServer(t, &Ports{KnowledgeBases: aliceKBs(), IdeaSeeds: seeds}, Config{})

		_, _, err := server.handleListIdeas(ctx, nil, ListIdeasInput{KBID: "kb-bob"})

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, seeds.listedKB)
	})

	t.Run("empty result is an empty list", func(t *testing.T) {
		server := newTestServer(t, &Ports{KnowledgeBases: aliceKBs()}, Config{})

		_, output, err := server.handleListIdeas(ctx, nil, ListIdeasInput{KBID: "kb-alice-2"})

		require.NoError(t, err)
		assert.NotNil(t, output.Ideas)
		assert.Zero(t, output.Count)
	})

	t.Run("no knowledge base service and no kb id", func(t *testing.T) {
		server := newTestServer(t, &Ports{}, Config{})

		_, _, err := server.handleListIdeas(ctx, nil, ListIdeasInput{})

		assert.ErrorIs(t, err, errNoKnowledgeBases)
	})
}

func TestServer_handleSynthesize(t *testing.T) {
	ctx := context.Background()

	t.Run("acts as the configured principal with a deadline", func(t *testing.T) {
		synth := &mockSynthesisService{result: &domain.SynthesisResult{
			KBID:        "kb-alice",
			Principal:   "alice",
			Suggestions: []domain.Suggestion{{Title: "Planner", Coverage: domain.CoverageHigh}},
		}}
		server := newTestServer(t, &Ports{Synthesis: synth}, Config{SynthesisTimeout: time.Minute})

		_, output, err := server.handleSynthesize(ctx, nil, SynthesizeInput{MaxSuggestions: 3})

		require.NoError(t, err)
		assert.Equal(t, "alice", synth.lastRequest.Principal)
		assert.Equal(t, 3, synth.lastRequest.MaxSuggestions)
		assert.True(t, synth.hadDeadline)
		require.Len(t, output.Suggestions, 1)
		assert.Equal(t, "Planner", output.Suggestions[0].Title)
	})

	t.Run("no timeout configured", func(t *testing.T) {
		synth := &mockSynthesisService{result: &domain.SynthesisResult{}}
		server := newTestServer(t, &Ports{Synthesis: synth}, Config{})

		_, _, err := server.handleSynthesize(ctx, nil, SynthesizeInput{})

		require.NoError(t, err)
		assert.False(t, synth.hadDeadline)
	})

	t.Run("insufficient knowledge is returned", func(t *testing.T) {
		synth := &mockSynthesisService{err: domain.Readiness{Documents: 2}.Err()}
		server := newTestServer(t, &Ports{Synthesis: synth}, Config{})

		_, _, err := server.handleSynthesize(ctx, nil, SynthesizeInput{})

		assert.ErrorIs(t, err, domain.ErrInsufficientKnowledge)
	})
}

func TestServer_handleGenerateIdeas(t *testing.T) {
	ctx := context.Background()

	t.Run("generates for an owned knowledge base", func(t *testing.T) {
		seeds := &mockIdeaSeedService{gen: &domain.SeedGeneration{IdeasGenerated: 3}}
		server := newTestServer(t, &Ports{KnowledgeBases: aliceKBs(), IdeaSeeds: seeds}, Config{})

		_, output, err := server.handleGenerateIdeas(ctx, nil, GenerateIdeasInput{KBID: "kb-alice", DocumentID: 4})

		require.NoError(t, err)
		assert.Equal(t, 3, output.IdeasGenerated)
		assert.False(t, output.AlreadyCompleted)
		assert.Equal(t, []int{4}, seeds.generated)
	})

	t.Run("missing kb id", func(t *testing.T) {
		server := newTestServer(t, &Ports{KnowledgeBases: aliceKBs()}, Config{})

		_, _, err := server.handleGenerateIdeas(ctx, nil, GenerateIdeasInput{DocumentID: 4})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("service failure", func(t *testing.T) {
		seeds := &mockIdeaSeedService{err: domain.ErrLLMUnavailable}
		server := newTestServer(t, &Ports{IdeaSeeds: seeds}, Config{})

		_, _, err := server.handleGenerateIdeas(ctx, nil, GenerateIdeasInput{KBID: "kb-x", DocumentID: 1})

		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	})
}

func TestServer_handleStats(t *testing.T) {
	kbs := aliceKBs()
	kbs.stats = &domain.KBStats{KBID: "kb-alice", Principal: "alice", Documents: 6, Clusters: 2, Concepts: 12, Seeds: 9}
	server := newTestServer(t, &Ports{KnowledgeBases: kbs}, Config{})

	_, output, err := server.handleStats(context.Background(), nil, StatsInput{})

	require.NoError(t, err)
	assert.Equal(t, "alice", kbs.statsPrincipal)
	assert.Equal(t, StatsOutput{
		KBID: "kb-alice", Documents: 6, Clusters: 2, Concepts: 12, Seeds: 9, Ready: true,
	}, output)
}

func TestServer_handleReadiness(t *testing.T) {
	synth := &mockSynthesisService{readiness: &domain.Readiness{KBID: "kb-alice", Documents: 3}}
	server := newTestServer(t, &Ports{Synthesis: synth}, Config{})

	_, output, err := server.handleReadiness(context.Background(), nil, ReadinessInput{})

	require.NoError(t, err)
	assert.Equal(t, 3, output.Documents)
	assert.False(t, output.Ready())
}

func TestServer_handleIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("ingests as the configured principal", func(t *testing.T) {
		pipeline := &mockPipelineService{}
		server := newTestServer(t, &Ports{KnowledgeBases: aliceKBs(), Pipeline: pipeline}, Config{})

		_, output, err := server.handleIngest(ctx, nil, IngestInput{
			KBID:       "kb-alice",
			DocumentID: 0,
			Title:      "Raft",
			Content:    "consensus",
			Concepts:   []ConceptInput{{Name: "consensus", Confidence: 0.9}},
		})

		require.NoError(t, err)
		assert.Equal(t, IngestOutput{KBID: "kb-alice", DocumentID: 0, Stage: "extracted"}, output)
		require.Len(t, pipeline.ingested, 1)
		rec := pipeline.ingested[0]
		assert.Equal(t, "alice", rec.Owner)
		require.Len(t, rec.Concepts, 1)
		assert.Equal(t, "consensus", rec.Concepts[0].Name)
	})

	t.Run("invalid concept is rejected", func(t *testing.T) {
		pipeline := &mockPipelineService{}
		server := newTestServer(t, &Ports{Pipeline: pipeline}, Config{})

		_, _, err := server.handleIngest(ctx, nil, IngestInput{
			KBID:     "kb-alice",
			Concepts: []ConceptInput{{Name: "x", Confidence: 1.5}},
		})

		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Empty(t, pipeline.ingested)
	})

	t.Run("foreign knowledge base is rejected", func(t *testing.T) {
		pipeline := &mockPipelineService{}
		server := newTestServer(t, &Ports{KnowledgeBases: aliceKBs(), Pipeline: pipeline}, Config{})

		_, _, err := server.handleIngest(ctx, nil, IngestInput{KBID: "kb-bob"})

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, pipeline.ingested)
	})

	t.Run("no pipeline", func(t *testing.T) {
		server := newTestServer(t, &Ports{}, Config{})

		_, _, err := server.handleIngest(ctx, nil, IngestInput{KBID: "kb-alice"})

		assert.ErrorIs(t, err, errNoPipeline)
	})

	t.Run("pipeline failure", func(t *testing.T) {
		pipeline := &mockPipelineService{err: errors.New("queue full")}
		server := newTestServer(t, &Ports{Pipeline: pipeline}, Config{})

		_, _, err := server.handleIngest(ctx, nil, IngestInput{KBID: "kb-alice"})

		assert.EqualError(t, err, "queue full")
	})
}
