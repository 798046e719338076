package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

func newStoreWithKBs(t *testing.T, kbs ...domain.KBID) *KBStore {
	t.Helper()
	store := NewKBStore()
	for _, kb := range kbs {
		require.NoError(t, store.EnsureKB(context.Background(), kb))
	}
	return store
}

func TestKBStore_EnsureKB_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1")

	docs, err := store.Documents(ctx, "k1")
	require.NoError(t, err)
	require.NoError(t, docs.Put(ctx, domain.Document{ID: 0, Owner: "alice"}))

	require.NoError(t, store.EnsureKB(ctx, "k1"))

	list, err := docs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestKBStore_EnsureKB_RejectsEmptyID(t *testing.T) {
	err := NewKBStore().EnsureKB(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestKBStore_UnknownKB(t *testing.T) {
	ctx := context.Background()
	store := NewKBStore()

	_, err := store.Documents(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Metadata(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Clusters(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = store.Update(ctx, "missing", func(driven.PartitionTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestKBStore_CollidingIDsStayIsolated(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1", "k2")

	d1, err := store.Documents(ctx, "k1")
	require.NoError(t, err)
	d2, err := store.Documents(ctx, "k2")
	require.NoError(t, err)
	require.NoError(t, d1.Put(ctx, domain.Document{ID: 0, Owner: "alice", Title: "A"}))
	require.NoError(t, d2.Put(ctx, domain.Document{ID: 0, Owner: "bob", Title: "B"}))

	m1, _ := store.Metadata(ctx, "k1")
	m2, _ := store.Metadata(ctx, "k2")
	require.NoError(t, m1.Put(ctx, domain.DocumentMetadata{DocumentID: 0, Owner: "alice"}))
	require.NoError(t, m2.Put(ctx, domain.DocumentMetadata{DocumentID: 0, Owner: "bob"}))

	c1, _ := store.Clusters(ctx, "k1")
	c2, _ := store.Clusters(ctx, "k2")
	require.NoError(t, c1.Put(ctx, domain.Cluster{ID: 0, Name: "one", DocIDs: []int{0}}))
	require.NoError(t, c2.Put(ctx, domain.Cluster{ID: 0, Name: "two", DocIDs: []int{0}}))

	doc1, err := d1.Get(ctx, 0)
	require.NoError(t, err)
	doc2, err := d2.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "A", doc1.Title)
	assert.Equal(t, domain.KBID("k1"), doc1.KBID)
	assert.Equal(t, "B", doc2.Title)
	assert.Equal(t, domain.KBID("k2"), doc2.KBID)

	meta1, _ := m1.Get(ctx, 0)
	meta2, _ := m2.Get(ctx, 0)
	assert.Equal(t, "alice", meta1.Owner)
	assert.Equal(t, "bob", meta2.Owner)

	cl1, _ := c1.Get(ctx, 0)
	cl2, _ := c2.Get(ctx, 0)
	assert.Equal(t, "one", cl1.Name)
	assert.Equal(t, "two", cl2.Name)

	list1, _ := d1.List(ctx)
	list2, _ := d2.List(ctx)
	assert.Len(t, list1, 1)
	assert.Len(t, list2, 1)
}

func TestKBStore_CrossPartitionWritesRejected(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1", "k2")
	d1, _ := store.Documents(ctx, "k1")
	m1, _ := store.Metadata(ctx, "k1")
	c1, _ := store.Clusters(ctx, "k1")
	d2, _ := store.Documents(ctx, "k2")
	require.NoError(t, d2.Put(ctx, domain.Document{ID: 7, Owner: "bob"}))

	err := d1.Put(ctx, domain.Document{KBID: "k2", ID: 1})
	assert.ErrorIs(t, err, domain.ErrIsolationViolation)

	err = m1.Put(ctx, domain.DocumentMetadata{KBID: "k2", DocumentID: 7})
	assert.ErrorIs(t, err, domain.ErrIsolationViolation)

	// Document 7 exists only in k2.
	err = m1.Put(ctx, domain.DocumentMetadata{DocumentID: 7})
	assert.ErrorIs(t, err, domain.ErrIsolationViolation)

	err = c1.Put(ctx, domain.Cluster{ID: 0, DocIDs: []int{7}})
	assert.ErrorIs(t, err, domain.ErrIsolationViolation)

	list, _ := c1.List(ctx)
	assert.Empty(t, list)
}

func TestKBStore_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1")
	d1, _ := store.Documents(ctx, "k1")
	c1, _ := store.Clusters(ctx, "k1")
	require.NoError(t, d1.Put(ctx, domain.Document{ID: 0}))
	require.NoError(t, c1.Put(ctx, domain.Cluster{ID: 0, DocIDs: []int{0}}))

	cl, _ := c1.Get(ctx, 0)
	cl.DocIDs[0] = 99

	again, _ := c1.Get(ctx, 0)
	assert.Equal(t, []int{0}, again.DocIDs)
}

func TestKBStore_Update_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1")
	d1, _ := store.Documents(ctx, "k1")
	require.NoError(t, d1.Put(ctx, domain.Document{ID: 3, Stage: domain.StageExtracted}))

	err := store.Update(ctx, "k1", func(tx driven.PartitionTx) error {
		assert.Equal(t, domain.KBID("k1"), tx.KB())
		id, err := tx.NextClusterID()
		if err != nil {
			return err
		}
		if err := tx.PutCluster(domain.Cluster{ID: id, DocIDs: []int{3}}); err != nil {
			return err
		}
		doc, err := tx.Document(3)
		if err != nil {
			return err
		}
		doc.ClusterID = &id
		doc.Stage = domain.StageClustered
		return tx.PutDocument(*doc)
	})
	require.NoError(t, err)

	doc, _ := d1.Get(ctx, 3)
	require.NotNil(t, doc.ClusterID)
	assert.Equal(t, 0, *doc.ClusterID)
	assert.Equal(t, domain.StageClustered, doc.Stage)

	c1, _ := store.Clusters(ctx, "k1")
	clusters, _ := c1.List(ctx)
	require.Len(t, clusters, 1)
	assert.Equal(t, domain.KBID("k1"), clusters[0].KBID)
}

func TestKBStore_Update_DiscardsOnError(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1")
	d1, _ := store.Documents(ctx, "k1")
	require.NoError(t, d1.Put(ctx, domain.Document{ID: 1}))
	boom := errors.New("boom")

	err := store.Update(ctx, "k1", func(tx driven.PartitionTx) error {
		id, _ := tx.NextClusterID()
		_ = tx.PutCluster(domain.Cluster{ID: id, DocIDs: []int{1}})
		return boom
	})
	require.ErrorIs(t, err, boom)

	c1, _ := store.Clusters(ctx, "k1")
	clusters, _ := c1.List(ctx)
	assert.Empty(t, clusters)

	// The discarded allocation is not consumed.
	_ = store.Update(ctx, "k1", func(tx driven.PartitionTx) error {
		id, _ := tx.NextClusterID()
		assert.Equal(t, 0, id)
		return nil
	})
}

func TestKBStore_Update_ClusterMembersMustExist(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1")

	err := store.Update(ctx, "k1", func(tx driven.PartitionTx) error {
		return tx.PutCluster(domain.Cluster{ID: 0, DocIDs: []int{42}})
	})
	assert.ErrorIs(t, err, domain.ErrIsolationViolation)
}

func TestKBStore_NextClusterIDPerKB(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1", "k2")

	next := func(kb domain.KBID) int {
		var got int
		require.NoError(t, store.Update(ctx, kb, func(tx driven.PartitionTx) error {
			var err error
			got, err = tx.NextClusterID()
			return err
		}))
		return got
	}

	assert.Equal(t, 0, next("k1"))
	assert.Equal(t, 1, next("k1"))
	assert.Equal(t, 0, next("k2"))
	assert.Equal(t, 2, next("k1"))
}

func TestKBStore_ConcurrentPartitions(t *testing.T) {
	ctx := context.Background()
	store := newStoreWithKBs(t, "k1", "k2")

	var wg sync.WaitGroup
	for _, kb := range []domain.KBID{"k1", "k2"} {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(kb domain.KBID, id int) {
				defer wg.Done()
				docs, err := store.Documents(ctx, kb)
				if err != nil {
					return
				}
				_ = docs.Put(ctx, domain.Document{ID: id})
			}(kb, i)
		}
	}
	wg.Wait()

	for _, kb := range []domain.KBID{"k1", "k2"} {
		docs, _ := store.Documents(ctx, kb)
		list, _ := docs.List(ctx)
		assert.Len(t, list, 50)
		_, err := domain.IndexDocuments(kb, list)
		assert.NoError(t, err)
	}
}
