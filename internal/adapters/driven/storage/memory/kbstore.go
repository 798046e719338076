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

// Ensure KBStore implements the interface.
var _ driven.KBStore = (*KBStore)(nil)

// KBStore is an in-memory implementation of driven.KBStore.
// Each knowledge base owns one partition with its own lock, so writers of
// different knowledge bases never contend.
type KBStore struct {
	mu         sync.RWMutex
	partitions map[domain.KBID]*partition
}

// partition holds the documents, metadata and clusters of exactly one KB.
type partition struct {
	mu            sync.RWMutex
	kb            domain.KBID
	documents     map[int]domain.Document
	metadata      map[int]domain.DocumentMetadata
	clusters      map[int]domain.Cluster
	nextClusterID int
}

// NewKBStore creates a new in-memory KB store.
func NewKBStore() *KBStore {
	return &KBStore{
		partitions: make(map[domain.KBID]*partition),
	}
}

// EnsureKB creates empty partitions for kbID if absent.
func (s *KBStore) EnsureKB(_ context.Context, kbID domain.KBID) error {
	if kbID.IsZero() {
		return fmt.Errorf("ensure kb: %w: empty kb id", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partitions[kbID]; ok {
		return nil
	}
	s.partitions[kbID] = &partition{
		kb:        kbID,
		documents: make(map[int]domain.Document),
		metadata:  make(map[int]domain.DocumentMetadata),
		clusters:  make(map[int]domain.Cluster),
	}
	return nil
}

// Documents returns the document partition of kbID.
func (s *KBStore) Documents(_ context.Context, kbID domain.KBID) (driven.DocumentPartition, error) {
	p, err := s.partition(kbID)
	if err != nil {
		return nil, err
	}
	return documentPartition{p}, nil
}

// Metadata returns the metadata partition of kbID.
func (s *KBStore) Metadata(_ context.Context, kbID domain.KBID) (driven.MetadataPartition, error) {
	p, err := s.partition(kbID)
	if err != nil {
		return nil, err
	}
	return metadataPartition{p}, nil
}

// Clusters returns the cluster partition of kbID.
func (s *KBStore) Clusters(_ context.Context, kbID domain.KBID) (driven.ClusterPartition, error) {
	p, err := s.partition(kbID)
	if err != nil {
		return nil, err
	}
	return clusterPartition{p}, nil
}

// Update runs fn with the partition of kbID locked for writing.
// Writes are staged and only applied when fn succeeds.
func (s *KBStore) Update(ctx context.Context, kbID domain.KBID, fn func(tx driven.PartitionTx) error) error {
	p, err := s.partition(kbID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &partitionTx{
		p:             p,
		documents:     make(map[int]domain.Document),
		metadata:      make(map[int]domain.DocumentMetadata),
		clusters:      make(map[int]domain.Cluster),
		nextClusterID: p.nextClusterID,
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, doc := range tx.documents {
		p.documents[id] = doc
	}
	for id, meta := range tx.metadata {
		p.metadata[id] = meta
	}
	for id, c := range tx.clusters {
		p.clusters[id] = c
	}
	p.nextClusterID = tx.nextClusterID
	return nil
}

func (s *KBStore) partition(kbID domain.KBID) (*partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.partitions[kbID]
	if !ok {
		return nil, fmt.Errorf("kb %s: %w", kbID, domain.ErrNotFound)
	}
	return p, nil
}

// documentPartition is a handle bound to one partition's documents.
type documentPartition struct{ p *partition }

func (d documentPartition) KB() domain.KBID { return d.p.kb }

func (d documentPartition) Get(_ context.Context, id int) (*domain.Document, error) {
	d.p.mu.RLock()
	defer d.p.mu.RUnlock()
	doc, ok := d.p.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d in kb %s: %w", id, d.p.kb, domain.ErrNotFound)
	}
	doc = cloneDocument(doc)
	return &doc, nil
}

func (d documentPartition) List(_ context.Context) ([]domain.Document, error) {
	d.p.mu.RLock()
	defer d.p.mu.RUnlock()
	docs := make([]domain.Document, 0, len(d.p.documents))
	for _, doc := range d.p.documents {
		docs = append(docs, cloneDocument(doc))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (d documentPartition) Put(_ context.Context, doc domain.Document) error {
	if err := domain.Stamp(d.p.kb, &doc.KBID); err != nil {
		return err
	}
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	d.p.documents[doc.ID] = cloneDocument(doc)
	return nil
}

// metadataPartition is a handle bound to one partition's metadata.
type metadataPartition struct{ p *partition }

func (m metadataPartition) KB() domain.KBID { return m.p.kb }

func (m metadataPartition) Get(_ context.Context, documentID int) (*domain.DocumentMetadata, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	meta, ok := m.p.metadata[documentID]
	if !ok {
		return nil, fmt.Errorf("metadata %d in kb %s: %w", documentID, m.p.kb, domain.ErrNotFound)
	}
	meta = cloneMetadata(meta)
	return &meta, nil
}

func (m metadataPartition) List(_ context.Context) ([]domain.DocumentMetadata, error) {
	m.p.mu.RLock()
	defer m.p.mu.RUnlock()
	metas := make([]domain.DocumentMetadata, 0, len(m.p.metadata))
	for _, meta := range m.p.metadata {
		metas = append(metas, cloneMetadata(meta))
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].DocumentID < metas[j].DocumentID })
	return metas, nil
}

func (m metadataPartition) Put(_ context.Context, meta domain.DocumentMetadata) error {
	if err := domain.Stamp(m.p.kb, &meta.KBID); err != nil {
		return err
	}
	m.p.mu.Lock()
	defer m.p.mu.Unlock()
	if _, ok := m.p.documents[meta.DocumentID]; !ok {
		return fmt.Errorf("%w: metadata for document %d absent from kb %s",
			domain.ErrIsolationViolation, meta.DocumentID, m.p.kb)
	}
	m.p.metadata[meta.DocumentID] = cloneMetadata(meta)
	return nil
}

// clusterPartition is a handle bound to one partition's clusters.
type clusterPartition struct{ p *partition }

func (c clusterPartition) KB() domain.KBID { return c.p.kb }

func (c clusterPartition) Get(_ context.Context, id int) (*domain.Cluster, error) {
	c.p.mu.RLock()
	defer c.p.mu.RUnlock()
	cluster, ok := c.p.clusters[id]
	if !ok {
		return nil, fmt.Errorf("cluster %d in kb %s: %w", id, c.p.kb, domain.ErrNotFound)
	}
	cluster = cloneCluster(cluster)
	return &cluster, nil
}

func (c clusterPartition) List(_ context.Context) ([]domain.Cluster, error) {
	c.p.mu.RLock()
	defer c.p.mu.RUnlock()
	return c.p.sortedClusters(), nil
}

func (c clusterPartition) Put(_ context.Context, cluster domain.Cluster) error {
	if err := domain.Stamp(c.p.kb, &cluster.KBID); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if err := c.p.putCluster(cluster, nil); err != nil {
		return err
	}
	if cluster.ID >= c.p.nextClusterID {
		c.p.nextClusterID = cluster.ID + 1
	}
	return nil
}

func (p *partition) sortedClusters() []domain.Cluster {
	clusters := make([]domain.Cluster, 0, len(p.clusters))
	for _, c := range p.clusters {
		clusters = append(clusters, cloneCluster(c))
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}

// putCluster validates membership against the partition documents, plus
// staged documents when called from a transaction. Caller holds p.mu.
func (p *partition) putCluster(cluster domain.Cluster, staged map[int]domain.Document) error {
	err := cluster.CheckMembers(func(id int) bool {
		if _, ok := staged[id]; ok {
			return true
		}
		_, ok := p.documents[id]
		return ok
	})
	if err != nil {
		return err
	}
	if staged == nil {
		p.clusters[cluster.ID] = cloneCluster(cluster)
	}
	return nil
}

// partitionTx stages writes against a write-locked partition.
type partitionTx struct {
	p             *partition
	documents     map[int]domain.Document
	metadata      map[int]domain.DocumentMetadata
	clusters      map[int]domain.Cluster
	nextClusterID int
}

func (tx *partitionTx) KB() domain.KBID { return tx.p.kb }

func (tx *partitionTx) Document(id int) (*domain.Document, error) {
	doc, ok := tx.documents[id]
	if !ok {
		doc, ok = tx.p.documents[id]
	}
	if !ok {
		return nil, fmt.Errorf("document %d in kb %s: %w", id, tx.p.kb, domain.ErrNotFound)
	}
	doc = cloneDocument(doc)
	return &doc, nil
}

func (tx *partitionTx) PutDocument(doc domain.Document) error {
	if err := domain.Stamp(tx.p.kb, &doc.KBID); err != nil {
		return err
	}
	tx.documents[doc.ID] = cloneDocument(doc)
	return nil
}

func (tx *partitionTx) Metadata(documentID int) (*domain.DocumentMetadata, error) {
	meta, ok := tx.metadata[documentID]
	if !ok {
		meta, ok = tx.p.metadata[documentID]
	}
	if !ok {
		return nil, fmt.Errorf("metadata %d in kb %s: %w", documentID, tx.p.kb, domain.ErrNotFound)
	}
	meta = cloneMetadata(meta)
	return &meta, nil
}

func (tx *partitionTx) PutMetadata(meta domain.DocumentMetadata) error {
	if err := domain.Stamp(tx.p.kb, &meta.KBID); err != nil {
		return err
	}
	if _, err := tx.Document(meta.DocumentID); err != nil {
		return fmt.Errorf("%w: metadata for document %d absent from kb %s",
			domain.ErrIsolationViolation, meta.DocumentID, tx.p.kb)
	}
	tx.metadata[meta.DocumentID] = cloneMetadata(meta)
	return nil
}

func (tx *partitionTx) Clusters() ([]domain.Cluster, error) {
	merged := make(map[int]domain.Cluster, len(tx.p.clusters)+len(tx.clusters))
	for id, c := range tx.p.clusters {
		merged[id] = c
	}
	for id, c := range tx.clusters {
		merged[id] = c
	}
	clusters := make([]domain.Cluster, 0, len(merged))
	for _, c := range merged {
		clusters = append(clusters, cloneCluster(c))
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters, nil
}

func (tx *partitionTx) NextClusterID() (int, error) {
	id := tx.nextClusterID
	tx.nextClusterID++
	return id, nil
}

func (tx *partitionTx) PutCluster(cluster domain.Cluster) error {
	if err := domain.Stamp(tx.p.kb, &cluster.KBID); err != nil {
		return err
	}
	if err := tx.p.putCluster(cluster, tx.documents); err != nil {
		return err
	}
	tx.clusters[cluster.ID] = cloneCluster(cluster)
	if cluster.ID >= tx.nextClusterID {
		tx.nextClusterID = cluster.ID + 1
	}
	return nil
}

func cloneDocument(doc domain.Document) domain.Document {
	if doc.ClusterID != nil {
		id := *doc.ClusterID
		doc.ClusterID = &id
	}
	if doc.Failure != nil {
		f := *doc.Failure
		doc.Failure = &f
	}
	return doc
}

func cloneMetadata(meta domain.DocumentMetadata) domain.DocumentMetadata {
	meta.Concepts = slices.Clone(meta.Concepts)
	return meta
}

func cloneCluster(c domain.Cluster) domain.Cluster {
	c.PrimaryConcepts = slices.Clone(c.PrimaryConcepts)
	c.DocIDs = slices.Clone(c.DocIDs)
	return c
}
