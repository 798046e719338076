package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// kbStore implements driven.KBStore.
type kbStore struct {
	store *Store
}

var _ driven.KBStore = (*kbStore)(nil)

// EnsureKB creates the partition row for kbID if absent.
func (s *kbStore) EnsureKB(ctx context.Context, kbID domain.KBID) error {
	if kbID.IsZero() {
		return fmt.Errorf("ensure kb: %w: empty kb id", domain.ErrInvalidInput)
	}
	_, err := s.store.writer.ExecContext(ctx,
		"INSERT INTO kb_partitions (kb_id) VALUES (?) ON CONFLICT(kb_id) DO NOTHING", string(kbID))
	if err != nil {
		return fmt.Errorf("ensuring kb %s: %w", kbID, err)
	}
	return nil
}

// Documents returns the document partition of kbID.
func (s *kbStore) Documents(ctx context.Context, kbID domain.KBID) (driven.DocumentPartition, error) {
	if err := s.exists(ctx, s.store.db, kbID); err != nil {
		return nil, err
	}
	return documentPartition{store: s.store, kb: kbID}, nil
}

// Metadata returns the metadata partition of kbID.
func (s *kbStore) Metadata(ctx context.Context, kbID domain.KBID) (driven.MetadataPartition, error) {
	if err := s.exists(ctx, s.store.db, kbID); err != nil {
		return nil, err
	}
	return metadataPartition{store: s.store, kb: kbID}, nil
}

// Clusters returns the cluster partition of kbID.
func (s *kbStore) Clusters(ctx context.Context, kbID domain.KBID) (driven.ClusterPartition, error) {
	if err := s.exists(ctx, s.store.db, kbID); err != nil {
		return nil, err
	}
	return clusterPartition{store: s.store, kb: kbID}, nil
}

// Update runs fn inside one database transaction bound to kbID. Updates of
// the same KB run one at a time; reads of any KB proceed meanwhile.
func (s *kbStore) Update(ctx context.Context, kbID domain.KBID, fn func(tx driven.PartitionTx) error) error {
	return s.store.withKBTx(ctx, kbID, func(tx *sql.Tx) error {
		if err := s.exists(ctx, tx, kbID); err != nil {
			return err
		}
		return fn(&partitionTx{ctx: ctx, tx: tx, kb: kbID})
	})
}

func (s *kbStore) exists(ctx context.Context, q querier, kbID domain.KBID) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM kb_partitions WHERE kb_id = ?", string(kbID)).Scan(&one)
	if err != nil {
		return notFound(err, "kb %s", kbID)
	}
	return nil
}

// ==================== Documents ====================

const documentColumns = `kb_id, id, owner, title, content, summary, cluster_id, stage,
	failure_stage, failure_message, failure_at, created_at, updated_at`

type documentPartition struct {
	store *Store
	kb    domain.KBID
}

func (d documentPartition) KB() domain.KBID { return d.kb }

func (d documentPartition) Get(ctx context.Context, id int) (*domain.Document, error) {
	return getDocument(ctx, d.store.db, d.kb, id)
}

func (d documentPartition) List(ctx context.Context) ([]domain.Document, error) {
	rows, err := d.store.db.QueryContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE kb_id = ? ORDER BY id", string(d.kb))
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document //nolint:prealloc // size unknown from query
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

func (d documentPartition) Put(ctx context.Context, doc domain.Document) error {
	if err := domain.Stamp(d.kb, &doc.KBID); err != nil {
		return err
	}
	return d.store.withKBTx(ctx, d.kb, func(tx *sql.Tx) error {
		return putDocument(ctx, tx, doc)
	})
}

func getDocument(ctx context.Context, q querier, kb domain.KBID, id int) (*domain.Document, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE kb_id = ? AND id = ?", string(kb), id)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, "document %d in kb %s", id, kb)
	}
	return doc, nil
}

func putDocument(ctx context.Context, q querier, doc domain.Document) error {
	var clusterID sql.NullInt64
	if doc.ClusterID != nil {
		clusterID = sql.NullInt64{Int64: int64(*doc.ClusterID), Valid: true}
	}
	var failStage, failMsg sql.NullString
	var failAt sql.NullInt64
	if doc.Failure != nil {
		failStage = sql.NullString{String: string(doc.Failure.Stage), Valid: true}
		failMsg = sql.NullString{String: doc.Failure.Message, Valid: true}
		failAt = sql.NullInt64{Int64: toNanos(doc.Failure.At), Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kb_id, id) DO UPDATE SET
			owner = excluded.owner,
			title = excluded.title,
			content = excluded.content,
			summary = excluded.summary,
			cluster_id = excluded.cluster_id,
			stage = excluded.stage,
			failure_stage = excluded.failure_stage,
			failure_message = excluded.failure_message,
			failure_at = excluded.failure_at,
			updated_at = excluded.updated_at
	`, string(doc.KBID), doc.ID, doc.Owner, doc.Title, doc.Content, doc.Summary, clusterID,
		string(doc.Stage), failStage, failMsg, failAt, toNanos(doc.CreatedAt), toNanos(doc.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving document %d: %w", doc.ID, err)
	}
	return nil
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var kb, stage string
	var clusterID sql.NullInt64
	var failStage, failMsg sql.NullString
	var failAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&kb, &doc.ID, &doc.Owner, &doc.Title, &doc.Content, &doc.Summary,
		&clusterID, &stage, &failStage, &failMsg, &failAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	doc.KBID = domain.KBID(kb)
	doc.Stage = domain.Stage(stage)
	if clusterID.Valid {
		id := int(clusterID.Int64)
		doc.ClusterID = &id
	}
	if failStage.Valid {
		doc.Failure = &domain.StageFailure{
			Stage:   domain.Stage(failStage.String),
			Message: failMsg.String,
			At:      fromNanos(failAt.Int64),
		}
	}
	doc.CreatedAt = fromNanos(createdAt)
	doc.UpdatedAt = fromNanos(updatedAt)
	return &doc, nil
}

// ==================== Metadata ====================

type metadataPartition struct {
	store *Store
	kb    domain.KBID
}

func (m metadataPartition) KB() domain.KBID { return m.kb }

func (m metadataPartition) Get(ctx context.Context, documentID int) (*domain.DocumentMetadata, error) {
	return getMetadata(ctx, m.store.db, m.kb, documentID)
}

func (m metadataPartition) List(ctx context.Context) ([]domain.DocumentMetadata, error) {
	rows, err := m.store.db.QueryContext(ctx, `
		SELECT kb_id, document_id, owner, source_type, concepts
		FROM document_metadata WHERE kb_id = ? ORDER BY document_id
	`, string(m.kb))
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	var metas []domain.DocumentMetadata //nolint:prealloc // size unknown from query
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata: %w", err)
	}
	return metas, nil
}

func (m metadataPartition) Put(ctx context.Context, meta domain.DocumentMetadata) error {
	if err := domain.Stamp(m.kb, &meta.KBID); err != nil {
		return err
	}
	return m.store.withKBTx(ctx, m.kb, func(tx *sql.Tx) error {
		return putMetadata(ctx, tx, meta)
	})
}

func getMetadata(ctx context.Context, q querier, kb domain.KBID, documentID int) (*domain.DocumentMetadata, error) {
	row := q.QueryRowContext(ctx, `
		SELECT kb_id, document_id, owner, source_type, concepts
		FROM document_metadata WHERE kb_id = ? AND document_id = ?
	`, string(kb), documentID)
	meta, err := scanMetadata(row)
	if err != nil {
		return nil, notFound(err, "metadata %d in kb %s", documentID, kb)
	}
	return meta, nil
}

// putMetadata requires the document to exist in the same KB.
func putMetadata(ctx context.Context, q querier, meta domain.DocumentMetadata) error {
	if _, err := getDocument(ctx, q, meta.KBID, meta.DocumentID); err != nil {
		return fmt.Errorf("%w: metadata for document %d absent from kb %s",
			domain.ErrIsolationViolation, meta.DocumentID, meta.KBID)
	}

	concepts := meta.Concepts
	if concepts == nil {
		concepts = []domain.Concept{}
	}
	conceptsJSON, err := json.Marshal(concepts)
	if err != nil {
		return fmt.Errorf("marshalling concepts: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO document_metadata (kb_id, document_id, owner, source_type, concepts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kb_id, document_id) DO UPDATE SET
			owner = excluded.owner,
			source_type = excluded.source_type,
			concepts = excluded.concepts
	`, string(meta.KBID), meta.DocumentID, meta.Owner, meta.SourceType, string(conceptsJSON))
	if err != nil {
		return fmt.Errorf("saving metadata %d: %w", meta.DocumentID, err)
	}
	return nil
}

func scanMetadata(row rowScanner) (*domain.DocumentMetadata, error) {
	var meta domain.DocumentMetadata
	var kb, conceptsJSON string
	if err := row.Scan(&kb, &meta.DocumentID, &meta.Owner, &meta.SourceType, &conceptsJSON); err != nil {
		return nil, err
	}
	meta.KBID = domain.KBID(kb)
	if err := json.Unmarshal([]byte(conceptsJSON), &meta.Concepts); err != nil {
		return nil, fmt.Errorf("unmarshaling concepts: %w", err)
	}
	return &meta, nil
}

// ==================== Clusters ====================

type clusterPartition struct {
	store *Store
	kb    domain.KBID
}

func (c clusterPartition) KB() domain.KBID { return c.kb }

func (c clusterPartition) Get(ctx context.Context, id int) (*domain.Cluster, error) {
	row := c.store.db.QueryRowContext(ctx, `
		SELECT kb_id, id, name, primary_concepts, doc_ids, created_at, updated_at
		FROM clusters WHERE kb_id = ? AND id = ?
	`, string(c.kb), id)
	cluster, err := scanCluster(row)
	if err != nil {
		return nil, notFound(err, "cluster %d in kb %s", id, c.kb)
	}
	return cluster, nil
}

func (c clusterPartition) List(ctx context.Context) ([]domain.Cluster, error) {
	return listClusters(ctx, c.store.db, c.kb)
}

func (c clusterPartition) Put(ctx context.Context, cluster domain.Cluster) error {
	if err := domain.Stamp(c.kb, &cluster.KBID); err != nil {
		return err
	}
	return c.store.withKBTx(ctx, c.kb, func(tx *sql.Tx) error {
		return putCluster(ctx, tx, cluster)
	})
}

func listClusters(ctx context.Context, q querier, kb domain.KBID) ([]domain.Cluster, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT kb_id, id, name, primary_concepts, doc_ids, created_at, updated_at
		FROM clusters WHERE kb_id = ? ORDER BY id
	`, string(kb))
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}
	defer rows.Close()

	var clusters []domain.Cluster //nolint:prealloc // size unknown from query
	for rows.Next() {
		cluster, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, *cluster)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clusters: %w", err)
	}
	return clusters, nil
}

// putCluster checks membership against the KB's documents, stores the
// cluster and keeps next_cluster_id ahead of it.
func putCluster(ctx context.Context, tx *sql.Tx, cluster domain.Cluster) error {
	ids, err := documentIDs(ctx, tx, cluster.KBID)
	if err != nil {
		return err
	}
	if err := cluster.CheckMembers(func(id int) bool {
		_, ok := ids[id]
		return ok
	}); err != nil {
		return err
	}

	concepts := cluster.PrimaryConcepts
	if concepts == nil {
		concepts = []string{}
	}
	conceptsJSON, err := json.Marshal(concepts)
	if err != nil {
		return fmt.Errorf("marshalling primary concepts: %w", err)
	}
	members := cluster.DocIDs
	if members == nil {
		members = []int{}
	}
	membersJSON, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("marshalling members: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clusters (kb_id, id, name, primary_concepts, doc_ids, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kb_id, id) DO UPDATE SET
			name = excluded.name,
			primary_concepts = excluded.primary_concepts,
			doc_ids = excluded.doc_ids,
			updated_at = excluded.updated_at
	`, string(cluster.KBID), cluster.ID, cluster.Name, string(conceptsJSON), string(membersJSON),
		toNanos(cluster.CreatedAt), toNanos(cluster.UpdatedAt))
	if err != nil {
		return fmt.Errorf("saving cluster %d: %w", cluster.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE kb_partitions SET next_cluster_id = MAX(next_cluster_id, ?) WHERE kb_id = ?
	`, cluster.ID+1, string(cluster.KBID))
	if err != nil {
		return fmt.Errorf("advancing cluster id: %w", err)
	}
	return nil
}

func documentIDs(ctx context.Context, q querier, kb domain.KBID) (map[int]struct{}, error) {
	rows, err := q.QueryContext(ctx, "SELECT id FROM documents WHERE kb_id = ?", string(kb))
	if err != nil {
		return nil, fmt.Errorf("querying document ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document ids: %w", err)
	}
	return ids, nil
}

func scanCluster(row rowScanner) (*domain.Cluster, error) {
	var c domain.Cluster
	var kb, conceptsJSON, membersJSON string
	var createdAt, updatedAt int64
	if err := row.Scan(&kb, &c.ID, &c.Name, &conceptsJSON, &membersJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.KBID = domain.KBID(kb)
	if err := json.Unmarshal([]byte(conceptsJSON), &c.PrimaryConcepts); err != nil {
		return nil, fmt.Errorf("unmarshaling primary concepts: %w", err)
	}
	if err := json.Unmarshal([]byte(membersJSON), &c.DocIDs); err != nil {
		return nil, fmt.Errorf("unmarshaling members: %w", err)
	}
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return &c, nil
}

// ==================== Partition Tx ====================

// partitionTx is the exclusive view of one KB inside a database transaction.
type partitionTx struct {
	ctx context.Context
	tx  *sql.Tx
	kb  domain.KBID
}

func (t *partitionTx) KB() domain.KBID { return t.kb }

func (t *partitionTx) Document(id int) (*domain.Document, error) {
	return getDocument(t.ctx, t.tx, t.kb, id)
}

func (t *partitionTx) PutDocument(doc domain.Document) error {
	if err := domain.Stamp(t.kb, &doc.KBID); err != nil {
		return err
	}
	return putDocument(t.ctx, t.tx, doc)
}

func (t *partitionTx) Metadata(documentID int) (*domain.DocumentMetadata, error) {
	return getMetadata(t.ctx, t.tx, t.kb, documentID)
}

func (t *partitionTx) PutMetadata(meta domain.DocumentMetadata) error {
	if err := domain.Stamp(t.kb, &meta.KBID); err != nil {
		return err
	}
	return putMetadata(t.ctx, t.tx, meta)
}

func (t *partitionTx) Clusters() ([]domain.Cluster, error) {
	return listClusters(t.ctx, t.tx, t.kb)
}

func (t *partitionTx) NextClusterID() (int, error) {
	var id int
	err := t.tx.QueryRowContext(t.ctx,
		"SELECT next_cluster_id FROM kb_partitions WHERE kb_id = ?", string(t.kb)).Scan(&id)
	if err != nil {
		return 0, notFound(err, "kb %s", t.kb)
	}
	if _, err := t.tx.ExecContext(t.ctx,
		"UPDATE kb_partitions SET next_cluster_id = ? WHERE kb_id = ?", id+1, string(t.kb)); err != nil {
		return 0, fmt.Errorf("advancing cluster id: %w", err)
	}
	return id, nil
}

func (t *partitionTx) PutCluster(cluster domain.Cluster) error {
	if err := domain.Stamp(t.kb, &cluster.KBID); err != nil {
		return err
	}
	return putCluster(t.ctx, t.tx, cluster)
}
