package domain

import (
	"strings"
	"time"
)

// KBID identifies a knowledge base. It is an opaque tenant key and the
// sole outer key of every partitioned store.
type KBID string

// String returns the string representation.
func (id KBID) String() string {
	return string(id)
}

// IsZero returns true if the identifier is empty.
func (id KBID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// KnowledgeBase is a tenant-scoped partition of documents, metadata and clusters.
type KnowledgeBase struct {
	// ID is the opaque tenant key.
	ID KBID

	// Owner is the principal that owns the knowledge base.
	Owner string

	// Default marks the principal's default knowledge base.
	// At most one knowledge base per principal has this set.
	Default bool

	// CreatedAt is when the knowledge base was created.
	CreatedAt time.Time
}

// KBStats summarises one principal's slice of a knowledge base.
type KBStats struct {
	KBID      KBID
	Principal string
	Documents int
	Clusters  int
	Concepts  int
	Seeds     int
}
