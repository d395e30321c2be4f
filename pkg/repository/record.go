package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catalpa-io/mnemo/pkg/adapter"
	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/utils/logging"
)

// CreateRecord uploads the serialized memory as an immutable blob and
// appends its index entry (and embedding, if the memory carries one) to the
// collection. The returned entry includes the assigned sequence number and
// chain back-pointer.
func (x *Index) CreateRecord(ctx context.Context, collection string, memory *model.Memory) (*model.IndexEntry, error) {
	if memory.ID == "" {
		memory.ID = model.NewMemoryID()
	}
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now()
	}

	raw, err := json.Marshal(memory)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal memory", goerr.V("id", memory.ID))
	}

	cid, err := x.store.Upload(ctx, []adapter.File{{Name: memory.Filename(), Data: raw}})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upload memory", goerr.V("id", memory.ID))
	}

	entry := &model.IndexEntry{
		ID:        memory.ID,
		CID:       cid,
		Filename:  memory.Filename(),
		RoomID:    memory.RoomID,
		AgentID:   memory.AgentID,
		TableName: memory.TableName,
		CreatedAt: memory.CreatedAt,
		UpdatedAt: time.Now(),
	}

	err = x.Update(ctx, collection, func(idx *model.CollectionIndex) error {
		if idx.Entry(memory.ID) != nil {
			return goerr.New("duplicate memory id in collection",
				goerr.V("collection", collection), goerr.V("id", memory.ID))
		}
		idx.Append(entry, memory.Embedding)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.From(ctx).Info("created memory record",
		"collection", collection, "id", memory.ID, "cid", cid)
	return entry, nil
}

// RemoveRecord retracts the record from the collection index and then asks
// the blob store to evict its CID from hot storage. The two are distinct:
// retraction always takes effect on success, eviction is best-effort and its
// failure is logged, not returned. An unknown id is a no-op.
func (x *Index) RemoveRecord(ctx context.Context, collection string, id model.MemoryID) error {
	var removedCID string

	err := x.Update(ctx, collection, func(idx *model.CollectionIndex) error {
		removedCID = ""
		if entry := idx.Entry(id); entry != nil {
			removedCID = entry.CID
		}
		idx.Remove(id)
		return nil
	})
	if err != nil {
		return err
	}

	if removedCID == "" {
		logging.From(ctx).Info("memory record not in index, nothing to remove",
			"collection", collection, "id", id)
		return nil
	}

	if err := x.store.Remove(ctx, removedCID); err != nil {
		logging.From(ctx).Warn("failed to evict record from hot storage",
			"collection", collection, "id", id, "cid", removedCID, "error", err)
	}

	logging.From(ctx).Info("removed memory record",
		"collection", collection, "id", id, "cid", removedCID)
	return nil
}

// FetchRecord looks the id up in the collections resolved into the cache
// during this process's lifetime and fetches its content through the
// gateway. A miss returns (nil, nil, nil); not-found is not an error.
func (x *Index) FetchRecord(ctx context.Context, id model.MemoryID) ([]byte, *model.IndexEntry, error) {
	x.cacheMu.RLock()
	var found *model.IndexEntry
	for _, entry := range x.cache {
		if e := entry.index.Entry(id); e != nil {
			dup := *e
			found = &dup
			break
		}
	}
	x.cacheMu.RUnlock()

	if found == nil {
		return nil, nil, nil
	}

	data, err := x.gateway.Fetch(ctx, found.CID, found.Filename)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to fetch record content",
			goerr.V("id", id), goerr.V("cid", found.CID))
	}

	return data, found, nil
}

// VerifyChain checks a collection's hash chain: entries sorted by sequence
// must link each PreviousCID to the CID written before it, the first entry
// must match RootCID, and LastSequence must cover every assigned sequence.
func (x *Index) VerifyChain(ctx context.Context, name string) error {
	idx, _ := x.LoadCollection(ctx, name)
	idx.Sort()

	if len(idx.Items) == 0 {
		return nil
	}

	first := idx.Items[0]
	if idx.RootCID != "" && idx.RootCID != first.CID {
		return goerr.New("chain root mismatch",
			goerr.V("collection", name),
			goerr.V("rootCid", idx.RootCID),
			goerr.V("first", first.CID))
	}
	if first.PreviousCID != "" {
		return goerr.New("first entry has a back-pointer",
			goerr.V("collection", name), goerr.V("id", first.ID))
	}

	prev := first
	for _, item := range idx.Items[1:] {
		if item.Sequence <= prev.Sequence {
			return goerr.New("sequence not strictly increasing",
				goerr.V("collection", name), goerr.V("id", item.ID),
				goerr.V("sequence", item.Sequence))
		}
		if item.PreviousCID != prev.CID {
			return goerr.New("chain break",
				goerr.V("collection", name), goerr.V("id", item.ID),
				goerr.V("previousCid", item.PreviousCID),
				goerr.V("expected", prev.CID))
		}
		prev = item
	}

	if idx.LastSequence < prev.Sequence {
		return goerr.New("lastSequence behind newest entry",
			goerr.V("collection", name),
			goerr.V("lastSequence", idx.LastSequence),
			goerr.V("newest", prev.Sequence))
	}

	return nil
}
