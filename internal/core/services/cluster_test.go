package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"go", "sql"}, []string{"go", "sql"}, 1},
		{"disjoint", []string{"go"}, []string{"rust"}, 0},
		{"half", []string{"go", "sql"}, []string{"go", "http"}, 1.0 / 3},
		{"duplicates ignored", []string{"go", "go"}, []string{"go"}, 1},
		{"empty", nil, []string{"go"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, jaccard(tt.a, tt.b), 1e-9)
		})
	}
}

func TestClusterName(t *testing.T) {
	concepts := []domain.Concept{
		{Name: "Channels", Confidence: 0.4},
		{Name: "Go", Confidence: 0.95},
		{Name: "go", Confidence: 0.9},
		{Name: "Concurrency", Confidence: 0.8},
	}
	assert.Equal(t, "Go & Concurrency", clusterName(concepts))
	assert.Equal(t, "Solo", clusterName([]domain.Concept{{Name: "Solo", Confidence: 1}}))
	assert.Equal(t, uncategorisedClusterName, clusterName(nil))
}

func TestClusterEngine_AssignCreatesAndJoins(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKBStore()
	putDocs(t, store, "k1",
		fixtureDoc{id: 0, owner: "alice", concepts: []string{"Go", "Concurrency", "Channels"}},
		fixtureDoc{id: 1, owner: "alice", concepts: []string{"go", "concurrency", "mutex"}},
		fixtureDoc{id: 2, owner: "alice", concepts: []string{"Gardening", "Soil"}},
	)
	engine := NewClusterEngine(store)

	first, err := engine.Assign(ctx, "k1", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, first.ID)
	assert.Equal(t, "Go & Concurrency", first.Name)
	assert.Equal(t, []string{"go", "concurrency", "channels"}, first.PrimaryConcepts)

	// 2 shared of 4 distinct: 0.5 > 0.3
	joined, err := engine.Assign(ctx, "k1", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, joined.ID)
	assert.Equal(t, []int{0, 1}, joined.DocIDs)

	separate, err := engine.Assign(ctx, "k1", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, separate.ID)

	doc := getDoc(t, store, "k1", 1)
	assert.Equal(t, domain.StageClustered, doc.Stage)
	require.NotNil(t, doc.ClusterID)
	assert.Equal(t, 0, *doc.ClusterID)
}

func TestClusterEngine_ThresholdIsStrict(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKBStore()
	putDocs(t, store, "k1", fixtureDoc{id: 5, owner: "alice", concepts: []string{"a", "b", "c"}})
	// 3 shared of 10 distinct is exactly 0.3.
	putCluster(t, store, "k1", domain.Cluster{
		ID:              0,
		PrimaryConcepts: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"},
	})

	cluster, err := NewClusterEngine(store).Assign(ctx, "k1", 5)

	require.NoError(t, err)
	assert.Equal(t, 1, cluster.ID)
}

func TestClusterEngine_TieGoesToLowestID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKBStore()
	putDocs(t, store, "k1", fixtureDoc{id: 9, owner: "alice", concepts: []string{"x", "y"}})
	putCluster(t, store, "k1", domain.Cluster{ID: 3, PrimaryConcepts: []string{"x", "y"}})
	putCluster(t, store, "k1", domain.Cluster{ID: 1, PrimaryConcepts: []string{"x", "y"}})

	cluster, err := NewClusterEngine(store).Assign(ctx, "k1", 9)

	require.NoError(t, err)
	assert.Equal(t, 1, cluster.ID)
}

func TestClusterEngine_StageGuards(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKBStore()
	putDocs(t, store, "k1",
		fixtureDoc{id: 0, owner: "alice", stage: domain.StageClustered, concepts: []string{"a"}},
		fixtureDoc{id: 1, owner: "alice", stage: domain.StageUploaded, concepts: []string{"a"}},
	)
	engine := NewClusterEngine(store)

	_, err := engine.Assign(ctx, "k1", 0)
	assert.ErrorIs(t, err, domain.ErrStageOrder)

	_, err = engine.Assign(ctx, "k1", 1)
	assert.ErrorIs(t, err, domain.ErrStageOrder)

	_, err = engine.Assign(ctx, "k1", 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClusterEngine_ExtractionFailureBlocksClustering(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKBStore()
	putDocs(t, store, "k1", fixtureDoc{id: 0, owner: "alice"})
	docs, _ := store.Documents(ctx, "k1")
	doc := getDoc(t, store, "k1", 0)
	doc.Fail(domain.StageExtracted, "unreadable pdf", doc.UpdatedAt)
	require.NoError(t, docs.Put(ctx, *doc))

	_, err := NewClusterEngine(store).Assign(ctx, "k1", 0)

	assert.ErrorIs(t, err, domain.ErrStageOrder)
	clusters, _ := store.Clusters(ctx, "k1")
	list, _ := clusters.List(ctx)
	assert.Empty(t, list)
}

func TestClusterEngine_PartitionsAllocateIndependently(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKBStore()
	putDocs(t, store, "k1", fixtureDoc{id: 0, owner: "alice", concepts: []string{"go"}})
	putDocs(t, store, "k2", fixtureDoc{id: 0, owner: "bob", concepts: []string{"go"}})
	engine := NewClusterEngine(store)

	c1, err := engine.Assign(ctx, "k1", 0)
	require.NoError(t, err)
	c2, err := engine.Assign(ctx, "k2", 0)
	require.NoError(t, err)

	assert.Equal(t, 0, c1.ID)
	assert.Equal(t, 0, c2.ID)
	assert.Equal(t, domain.KBID("k1"), c1.KBID)
	assert.Equal(t, domain.KBID("k2"), c2.KBID)

	part, _ := store.Clusters(ctx, "k1")
	list, _ := part.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, []int{0}, list[0].DocIDs)
}
