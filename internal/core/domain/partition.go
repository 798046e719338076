package domain

// Stamp assigns kb to a record that has no KB yet and rejects a record that
// already belongs to a different KB.
func Stamp(kb KBID, recordKB *KBID) error {
	if recordKB.IsZero() {
		*recordKB = kb
		return nil
	}
	if *recordKB != kb {
		return isolation("record of kb %s written to partition %s", *recordKB, kb)
	}
	return nil
}

// IndexDocuments maps documents by ID. Every document must belong to kb and
// IDs must be unique; building one map out of several partitions is exactly
// the defect this guards against.
func IndexDocuments(kb KBID, docs []Document) (map[int]Document, error) {
	index := make(map[int]Document, len(docs))
	for i := range docs {
		if docs[i].KBID != kb {
			return nil, isolation("document %d of kb %s indexed under kb %s", docs[i].ID, docs[i].KBID, kb)
		}
		if _, dup := index[docs[i].ID]; dup {
			return nil, isolation("document id %d appears twice under kb %s", docs[i].ID, kb)
		}
		index[docs[i].ID] = docs[i]
	}
	return index, nil
}

// IndexMetadata maps metadata by document ID with the same guarantees as
// IndexDocuments.
func IndexMetadata(kb KBID, metas []DocumentMetadata) (map[int]DocumentMetadata, error) {
	index := make(map[int]DocumentMetadata, len(metas))
	for i := range metas {
		if metas[i].KBID != kb {
			return nil, isolation("metadata %d of kb %s indexed under kb %s", metas[i].DocumentID, metas[i].KBID, kb)
		}
		if _, dup := index[metas[i].DocumentID]; dup {
			return nil, isolation("metadata id %d appears twice under kb %s", metas[i].DocumentID, kb)
		}
		index[metas[i].DocumentID] = metas[i]
	}
	return index, nil
}

// CheckClusters verifies every cluster belongs to kb.
func CheckClusters(kb KBID, clusters []Cluster) error {
	for i := range clusters {
		if clusters[i].KBID != kb {
			return isolation("cluster %d of kb %s read under kb %s", clusters[i].ID, clusters[i].KBID, kb)
		}
	}
	return nil
}
