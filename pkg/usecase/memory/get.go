package memory

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/utils/logging"
)

// GetInput filters the memories of one collection.
type GetInput struct {
	Collection string
	RoomID     string
	AgentID    string
	Unique     bool // keep only records flagged unique
	Count      int  // 0 means no limit
}

// Get returns the collection's memories filtered by room and agent, newest
// first. Records whose content cannot be fetched are skipped rather than
// failing the whole read.
func (u *UseCase) Get(ctx context.Context, input GetInput) ([]*model.Memory, error) {
	if input.Collection == "" {
		return nil, goerr.New("collection name is required")
	}

	idx, _ := u.repo.LoadCollection(ctx, input.Collection)

	var entries []*model.IndexEntry
	for _, entry := range idx.Items {
		if input.RoomID != "" && entry.RoomID != input.RoomID {
			continue
		}
		if input.AgentID != "" && entry.AgentID != input.AgentID {
			continue
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Sequence > entries[j].Sequence
	})
	// The unique flag lives in the record payload, not the index, so the
	// limit can only be applied before fetching when no such filter runs.
	if !input.Unique && input.Count > 0 && len(entries) > input.Count {
		entries = entries[:input.Count]
	}

	memories := make([]*model.Memory, 0, len(entries))
	for _, entry := range entries {
		m, err := u.fetchMemory(ctx, entry)
		if err != nil {
			logging.From(ctx).Warn("skipping unreadable memory record",
				"collection", input.Collection, "id", entry.ID, "error", err)
			continue
		}
		if input.Unique && !m.Unique {
			continue
		}
		memories = append(memories, m)
		if input.Count > 0 && len(memories) == input.Count {
			break
		}
	}

	return memories, nil
}

func (u *UseCase) fetchMemory(ctx context.Context, entry *model.IndexEntry) (*model.Memory, error) {
	data, err := u.repo.Gateway().Fetch(ctx, entry.CID, entry.Filename)
	if err != nil {
		return nil, err
	}

	var m model.Memory
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory record",
			goerr.V("id", entry.ID), goerr.V("cid", entry.CID))
	}

	return &m, nil
}
