package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
	"github.com/custodia-labs/kbsynth/internal/logger"
)

// ClusterSimilarityThreshold is the Jaccard similarity a document must
// strictly exceed to join an existing cluster.
const ClusterSimilarityThreshold = 0.3

const uncategorisedClusterName = "Uncategorised"

// ClusterEngine assigns documents to concept clusters inside one KB.
type ClusterEngine struct {
	store driven.KBStore
	now   func() time.Time
}

// NewClusterEngine creates a cluster engine over store.
func NewClusterEngine(store driven.KBStore) *ClusterEngine {
	return &ClusterEngine{store: store, now: time.Now}
}

// Assign clusters one extracted document and advances it to Clustered.
// The read of existing clusters, the cluster write and the document update
// happen in one partition transaction.
func (e *ClusterEngine) Assign(ctx context.Context, kbID domain.KBID, documentID int) (*domain.Cluster, error) {
	var assigned domain.Cluster

	err := e.store.Update(ctx, kbID, func(tx driven.PartitionTx) error {
		doc, err := tx.Document(documentID)
		if err != nil {
			return err
		}
		if !doc.CanEnter(domain.StageClustered) {
			return fmt.Errorf("%w: document %d at %s cannot enter %s",
				domain.ErrStageOrder, documentID, doc.Stage, domain.StageClustered)
		}

		meta, err := tx.Metadata(documentID)
		if err != nil {
			return fmt.Errorf("load metadata: %w", err)
		}
		names := meta.ConceptNames()

		clusters, err := tx.Clusters()
		if err != nil {
			return err
		}

		now := e.now()
		best := bestCluster(names, clusters)
		if best != nil {
			best.AddMember(documentID)
			best.UpdatedAt = now
			assigned = *best
		} else {
			id, err := tx.NextClusterID()
			if err != nil {
				return err
			}
			assigned = domain.Cluster{
				KBID:            kbID,
				ID:              id,
				Name:            clusterName(meta.Concepts),
				PrimaryConcepts: names,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			assigned.AddMember(documentID)
		}

		// The document must be visible to the membership check, so it is
		// staged before the cluster.
		clusterID := assigned.ID
		doc.ClusterID = &clusterID
		doc.Advance(domain.StageClustered, now)
		if err := tx.PutDocument(*doc); err != nil {
			return err
		}
		return tx.PutCluster(assigned)
	})
	if err != nil {
		return nil, fmt.Errorf("cluster document %d in kb %s: %w", documentID, kbID, err)
	}

	logger.With("kb_id", kbID, "doc", documentID).
		Debugw("document clustered", "cluster", assigned.ID, "members", len(assigned.DocIDs))
	return &assigned, nil
}

// bestCluster returns the cluster most similar to names whose similarity
// strictly exceeds the threshold. clusters must be ordered by ID so ties go
// to the lowest ID.
func bestCluster(names []string, clusters []domain.Cluster) *domain.Cluster {
	var best *domain.Cluster
	bestScore := ClusterSimilarityThreshold
	for i := range clusters {
		score := jaccard(names, clusters[i].PrimaryConcepts)
		if score > bestScore {
			best = &clusters[i]
			bestScore = score
		}
	}
	return best
}

// jaccard returns |a ∩ b| / |a ∪ b| over the distinct elements of a and b.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	union := len(setA)
	intersection := 0
	seenB := make(map[string]struct{}, len(b))
	for _, s := range b {
		if _, dup := seenB[s]; dup {
			continue
		}
		seenB[s] = struct{}{}
		if _, ok := setA[s]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}

// clusterName joins the two highest-confidence concept names.
func clusterName(concepts []domain.Concept) string {
	ranked := make([]domain.Concept, 0, len(concepts))
	for _, c := range concepts {
		if strings.TrimSpace(c.Name) != "" {
			ranked = append(ranked, c)
		}
	}
	if len(ranked) == 0 {
		return uncategorisedClusterName
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Confidence > ranked[j].Confidence
	})

	var parts []string
	seen := make(map[string]struct{}, 2)
	for _, c := range ranked {
		key := c.NormalizedName()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		parts = append(parts, strings.TrimSpace(c.Name))
		if len(parts) == 2 {
			break
		}
	}
	return strings.Join(parts, " & ")
}
