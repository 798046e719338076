package domain

import (
	"slices"
	"time"
)

// Cluster is a KB-local grouping of documents sharing concept similarity.
type Cluster struct {
	// KBID is the knowledge base that owns the cluster.
	KBID KBID

	// ID is allocated per KB, starting at 0.
	ID int

	// Name is the human-readable cluster name.
	Name string

	// PrimaryConcepts is the normalised concept set the cluster was founded on.
	PrimaryConcepts []string

	// DocIDs are the member documents, in join order.
	// Every member must exist in the same KB's document set.
	DocIDs []int

	// CreatedAt is when the cluster was created.
	CreatedAt time.Time

	// UpdatedAt is when membership last changed.
	UpdatedAt time.Time
}

// HasMember reports whether docID is a member.
func (c *Cluster) HasMember(docID int) bool {
	return slices.Contains(c.DocIDs, docID)
}

// AddMember appends docID if it is not already a member.
// Returns true if the membership changed.
func (c *Cluster) AddMember(docID int) bool {
	if c.HasMember(docID) {
		return false
	}
	c.DocIDs = append(c.DocIDs, docID)
	return true
}

// CheckMembers verifies every member passes exists, which must consult the
// document set of the cluster's own KB.
func (c *Cluster) CheckMembers(exists func(docID int) bool) error {
	for _, id := range c.DocIDs {
		if !exists(id) {
			return isolation("cluster %d in kb %s references document %d outside its knowledge base",
				c.ID, c.KBID, id)
		}
	}
	return nil
}
