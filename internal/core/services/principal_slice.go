package services

import (
	"context"
	"sort"

	"github.com/custodia-labs/kbsynth/internal/core/domain"
	"github.com/custodia-labs/kbsynth/internal/core/ports/driven"
)

// principalSlice is the owner-filtered view of one knowledge base.
type principalSlice struct {
	kb        domain.KBID
	documents []domain.Document
	metadata  map[int]domain.DocumentMetadata
	clusters  []domain.Cluster
}

// readPrincipalSlice reads the partitions of exactly one knowledge base and
// keeps only the principal's records.
func readPrincipalSlice(ctx context.Context, store driven.KBStore, kb domain.KBID, principal string) (*principalSlice, error) {
	docPart, err := store.Documents(ctx, kb)
	if err != nil {
		return nil, err
	}
	metaPart, err := store.Metadata(ctx, kb)
	if err != nil {
		return nil, err
	}
	clusterPart, err := store.Clusters(ctx, kb)
	if err != nil {
		return nil, err
	}

	docs, err := docPart.List(ctx)
	if err != nil {
		return nil, err
	}
	metas, err := metaPart.List(ctx)
	if err != nil {
		return nil, err
	}
	clusters, err := clusterPart.List(ctx)
	if err != nil {
		return nil, err
	}

	docIndex, err := domain.IndexDocuments(kb, docs)
	if err != nil {
		return nil, err
	}
	metaIndex, err := domain.IndexMetadata(kb, metas)
	if err != nil {
		return nil, err
	}
	if err := domain.CheckClusters(kb, clusters); err != nil {
		return nil, err
	}

	return filterToPrincipal(kb, principal, docIndex, metaIndex, clusters), nil
}

// filterToPrincipal keeps the principal's documents and metadata, and the
// clusters with at least one of the principal's documents, reduced to those
// members.
func filterToPrincipal(
	kb domain.KBID,
	principal string,
	docs map[int]domain.Document,
	metas map[int]domain.DocumentMetadata,
	clusters []domain.Cluster,
) *principalSlice {
	s := &principalSlice{kb: kb, metadata: make(map[int]domain.DocumentMetadata)}

	owned := make(map[int]struct{})
	for id, doc := range docs {
		if doc.Owner != principal || doc.ExtractionFailed() {
			continue
		}
		owned[id] = struct{}{}
		s.documents = append(s.documents, doc)
		if meta, ok := metas[id]; ok && meta.Owner == principal {
			s.metadata[id] = meta
		}
	}
	sort.Slice(s.documents, func(i, j int) bool { return s.documents[i].ID < s.documents[j].ID })

	for _, c := range clusters {
		members := make([]int, 0, len(c.DocIDs))
		for _, id := range c.DocIDs {
			if _, ok := owned[id]; ok {
				members = append(members, id)
			}
		}
		if len(members) == 0 {
			continue
		}
		c.DocIDs = members
		s.clusters = append(s.clusters, c)
	}
	return s
}

func readinessOf(s *principalSlice) domain.Readiness {
	concepts := make(map[string]struct{})
	for _, meta := range s.metadata {
		for _, name := range meta.ConceptNames() {
			concepts[name] = struct{}{}
		}
	}
	return domain.Readiness{
		KBID:      s.kb,
		Documents: len(s.documents),
		Concepts:  len(concepts),
		Clusters:  len(s.clusters),
	}
}

