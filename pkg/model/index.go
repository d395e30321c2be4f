package model

import (
	"sort"
	"time"
)

const (
	RootIndexFilename       = "root.json"
	CollectionIndexFilename = "index.json"
)

// CollectionRef points at the latest published index of one collection.
type CollectionRef struct {
	CID         string    `json:"cid"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RootIndex maps collection names to their latest collection index CID. It is
// replaced wholesale on every update; partial writes never happen.
type RootIndex struct {
	Collections map[string]CollectionRef `json:"collections"`
}

// NewRootIndex returns an empty root index.
func NewRootIndex() *RootIndex {
	return &RootIndex{Collections: map[string]CollectionRef{}}
}

// IndexEntry is the metadata of one stored record within a collection.
// PreviousCID links each entry to the CID of the entry written before it,
// so a reader holding the index can verify the write chain independently.
type IndexEntry struct {
	ID          MemoryID  `json:"id"`
	CID         string    `json:"cid"`
	Filename    string    `json:"filename"`
	RoomID      string    `json:"roomId,omitempty"`
	AgentID     string    `json:"agentId,omitempty"`
	TableName   string    `json:"tableName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Sequence    uint64    `json:"sequence,omitempty"`
	PreviousCID string    `json:"previousCid,omitempty"`
}

// EmbeddingEntry holds the similarity-search vector of one record.
type EmbeddingEntry struct {
	ID     MemoryID  `json:"id"`
	Vector []float64 `json:"vector"`
}

// CollectionIndex is the per-collection directory of record metadata, kept in
// chronological order by Sequence. RootCID is the CID of the first record
// ever written to the collection and anchors chain verification.
type CollectionIndex struct {
	Items        []*IndexEntry     `json:"items"`
	LastUpdated  time.Time         `json:"lastUpdated"`
	LastSequence uint64            `json:"lastSequence,omitempty"`
	RootCID      string            `json:"rootCid,omitempty"`
	Embeddings   []*EmbeddingEntry `json:"embeddings,omitempty"`
}

// NewCollectionIndex returns a fresh empty index.
func NewCollectionIndex() *CollectionIndex {
	return &CollectionIndex{
		Items:       []*IndexEntry{},
		LastUpdated: time.Now(),
	}
}

// Entry returns the entry with the given id, or nil.
func (x *CollectionIndex) Entry(id MemoryID) *IndexEntry {
	for _, item := range x.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Embedding returns the embedding entry for the given id, or nil.
func (x *CollectionIndex) Embedding(id MemoryID) *EmbeddingEntry {
	for _, e := range x.Embeddings {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Sort orders Items by sequence so the persisted representation is always
// chronological regardless of insertion order. The sort is stable: entries
// without a sequence keep their relative insertion order.
func (x *CollectionIndex) Sort() {
	sort.SliceStable(x.Items, func(i, j int) bool {
		return x.Items[i].Sequence < x.Items[j].Sequence
	})
}

// Append adds an entry (and optionally its embedding vector), assigning the
// next sequence number and chaining PreviousCID to the latest existing entry.
// The chain fields are always overwritten: the same entry may be re-appended
// to a freshly reloaded index after a write conflict, and values assigned by
// an earlier attempt must not survive into the new chain.
func (x *CollectionIndex) Append(entry *IndexEntry, vector []float64) {
	x.Sort()
	entry.PreviousCID = ""
	if n := len(x.Items); n > 0 {
		entry.PreviousCID = x.Items[n-1].CID
	}
	x.LastSequence++
	entry.Sequence = x.LastSequence
	if x.RootCID == "" && len(x.Items) == 0 {
		x.RootCID = entry.CID
	}
	x.Items = append(x.Items, entry)
	if len(vector) > 0 {
		x.Embeddings = append(x.Embeddings, &EmbeddingEntry{ID: entry.ID, Vector: vector})
	}
	x.LastUpdated = time.Now()
}

// Remove drops the entry and its embedding for the given id, re-linking the
// successor's back-pointer so the remaining chain stays verifiable. It
// reports whether an entry was actually removed.
func (x *CollectionIndex) Remove(id MemoryID) bool {
	var removed *IndexEntry
	items := x.Items[:0]
	for _, item := range x.Items {
		if item.ID == id {
			removed = item
			continue
		}
		items = append(items, item)
	}
	x.Items = items
	found := removed != nil

	if found {
		for _, item := range x.Items {
			if item.PreviousCID == removed.CID {
				item.PreviousCID = removed.PreviousCID
			}
		}
		if x.RootCID == removed.CID {
			x.RootCID = ""
			x.Sort()
			if len(x.Items) > 0 {
				x.RootCID = x.Items[0].CID
			}
		}
	}

	embeddings := x.Embeddings[:0]
	for _, e := range x.Embeddings {
		if e.ID == id {
			continue
		}
		embeddings = append(embeddings, e)
	}
	x.Embeddings = embeddings

	if found {
		x.LastUpdated = time.Now()
	}
	return found
}

// Clone returns a deep copy. Cached indexes are shared between operations and
// must not be mutated in place.
func (x *CollectionIndex) Clone() *CollectionIndex {
	c := &CollectionIndex{
		Items:        make([]*IndexEntry, len(x.Items)),
		LastUpdated:  x.LastUpdated,
		LastSequence: x.LastSequence,
		RootCID:      x.RootCID,
	}
	for i, item := range x.Items {
		dup := *item
		c.Items[i] = &dup
	}
	if x.Embeddings != nil {
		c.Embeddings = make([]*EmbeddingEntry, len(x.Embeddings))
		for i, e := range x.Embeddings {
			dup := EmbeddingEntry{ID: e.ID, Vector: append([]float64(nil), e.Vector...)}
			c.Embeddings[i] = &dup
		}
	}
	return c
}
