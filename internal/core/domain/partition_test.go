package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamp(t *testing.T) {
	var kb KBID
	require.NoError(t, Stamp("kb-1", &kb))
	assert.Equal(t, KBID("kb-1"), kb)

	require.NoError(t, Stamp("kb-1", &kb))
	assert.ErrorIs(t, Stamp("kb-2", &kb), ErrIsolationViolation)
}

func TestIndexDocuments_RejectsMergedPartitions(t *testing.T) {
	k1 := []Document{{KBID: "k1", ID: 0, Content: "A"}}
	k2 := []Document{{KBID: "k2", ID: 0, Content: "B"}}

	idx, err := IndexDocuments("k1", k1)
	require.NoError(t, err)
	assert.Equal(t, "A", idx[0].Content)

	// Flattening both partitions into one id-keyed map is the collision bug.
	merged := append(append([]Document{}, k1...), k2...)
	_, err = IndexDocuments("k1", merged)
	assert.ErrorIs(t, err, ErrIsolationViolation)
}

func TestIndexDocuments_RejectsDuplicateIDs(t *testing.T) {
	docs := []Document{{KBID: "k1", ID: 3}, {KBID: "k1", ID: 3}}
	_, err := IndexDocuments("k1", docs)
	assert.ErrorIs(t, err, ErrIsolationViolation)
}

func TestIndexMetadata(t *testing.T) {
	metas := []DocumentMetadata{{KBID: "k1", DocumentID: 1, Owner: "alice"}}
	idx, err := IndexMetadata("k1", metas)
	require.NoError(t, err)
	assert.Equal(t, "alice", idx[1].Owner)

	_, err = IndexMetadata("k2", metas)
	assert.ErrorIs(t, err, ErrIsolationViolation)
}

func TestCheckClusters(t *testing.T) {
	assert.NoError(t, CheckClusters("k1", []Cluster{{KBID: "k1", ID: 0}}))
	assert.ErrorIs(t, CheckClusters("k1", []Cluster{{KBID: "k2", ID: 0}}), ErrIsolationViolation)
}

func TestCluster_Members(t *testing.T) {
	c := Cluster{KBID: "k1", ID: 0, DocIDs: []int{1}}

	assert.True(t, c.AddMember(2))
	assert.False(t, c.AddMember(2))
	assert.Equal(t, []int{1, 2}, c.DocIDs)

	known := map[int]bool{1: true, 2: true}
	assert.NoError(t, c.CheckMembers(func(id int) bool { return known[id] }))

	c.AddMember(9)
	assert.ErrorIs(t, c.CheckMembers(func(id int) bool { return known[id] }), ErrIsolationViolation)
}
