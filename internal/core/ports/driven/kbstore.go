package driven

import (
	"context"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
)

// KBStore is the partitioned store of per-tenant documents, metadata and
// clusters. The knowledge base identifier is the sole outer key.
//
// There is deliberately no method that enumerates knowledge bases or reads
// across them: callers resolve one KB, read its partition, then filter by
// owner inside it.
type KBStore interface {
	// EnsureKB creates empty partitions for kbID if absent.
	// Calling it again for the same KB is a no-op.
	EnsureKB(ctx context.Context, kbID domain.KBID) error

	// Documents returns the document partition of kbID.
	// Returns domain.ErrNotFound if the KB was never ensured.
	Documents(ctx context.Context, kbID domain.KBID) (DocumentPartition, error)

	// Metadata returns the metadata partition of kbID.
	Metadata(ctx context.Context, kbID domain.KBID) (MetadataPartition, error)

	// Clusters returns the cluster partition of kbID.
	Clusters(ctx context.Context, kbID domain.KBID) (ClusterPartition, error)

	// Update runs fn with exclusive write access to the partition of kbID.
	// Other partitions are not blocked. If fn returns an error nothing
	// written through the tx is kept.
	Update(ctx context.Context, kbID domain.KBID, fn func(tx PartitionTx) error) error
}

// DocumentPartition is a handle on exactly one KB's documents.
type DocumentPartition interface {
	// KB returns the knowledge base this handle is bound to.
	KB() domain.KBID

	// Get retrieves a document by its KB-local ID.
	Get(ctx context.Context, id int) (*domain.Document, error)

	// List returns all documents ordered by ID.
	List(ctx context.Context) ([]domain.Document, error)

	// Put stores or replaces a document. A document of another KB is
	// rejected with domain.ErrIsolationViolation.
	Put(ctx context.Context, doc domain.Document) error
}

// MetadataPartition is a handle on exactly one KB's document metadata.
type MetadataPartition interface {
	KB() domain.KBID
	Get(ctx context.Context, documentID int) (*domain.DocumentMetadata, error)
	List(ctx context.Context) ([]domain.DocumentMetadata, error)

	// Put stores metadata for a document that exists in the same KB.
	Put(ctx context.Context, meta domain.DocumentMetadata) error
}

// ClusterPartition is a handle on exactly one KB's clusters.
type ClusterPartition interface {
	KB() domain.KBID
	Get(ctx context.Context, id int) (*domain.Cluster, error)
	List(ctx context.Context) ([]domain.Cluster, error)

	// Put stores a cluster whose members all exist in the same KB.
	Put(ctx context.Context, cluster domain.Cluster) error
}

// PartitionTx is the exclusive view of one partition inside KBStore.Update.
type PartitionTx interface {
	KB() domain.KBID

	// Document returns a document of this partition.
	Document(id int) (*domain.Document, error)

	// PutDocument stores a document of this partition.
	PutDocument(doc domain.Document) error

	// Metadata returns the metadata of a document of this partition.
	Metadata(documentID int) (*domain.DocumentMetadata, error)

	// PutMetadata stores metadata for a document of this partition,
	// including one staged earlier in the same tx.
	PutMetadata(meta domain.DocumentMetadata) error

	// Clusters returns the partition's clusters ordered by ID.
	Clusters() ([]domain.Cluster, error)

	// NextClusterID allocates the next cluster ID of this KB.
	// IDs start at 0 and increase monotonically.
	NextClusterID() (int, error)

	// PutCluster stores a cluster of this partition.
	PutCluster(cluster domain.Cluster) error
}
