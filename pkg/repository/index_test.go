package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/catalpa-io/mnemo/pkg/adapter"
	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/repository"
)

func setupIndex(t *testing.T) (*repository.Index, *adapter.LocalStore) {
	store, err := adapter.NewLocalStore(t.TempDir())
	gt.NoError(t, err)
	return repository.New(store, store), store
}

func TestCreateAndLoad(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	memory := &model.Memory{
		ID:      "m1",
		RoomID:  "room-1",
		Content: map[string]any{"text": "hello"},
	}

	entry, err := idx.CreateRecord(ctx, "conversations", memory)
	gt.NoError(t, err)
	gt.Equal(t, entry.ID, model.MemoryID("m1"))
	gt.Equal(t, entry.Sequence, uint64(1))

	loaded, cid := idx.LoadCollection(ctx, "conversations")
	gt.NotEqual(t, cid, "")
	gt.A(t, loaded.Items).Length(1)
	gt.Equal(t, loaded.Items[0].ID, model.MemoryID("m1"))
	gt.Equal(t, loaded.Items[0].RoomID, "room-1")
}

func TestFetchRecordRoundTrip(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	memory := &model.Memory{ID: "m1", Content: map[string]any{"text": "payload"}}
	_, err := idx.CreateRecord(ctx, "conversations", memory)
	gt.NoError(t, err)

	want, err := json.Marshal(memory)
	gt.NoError(t, err)

	data, entry, err := idx.FetchRecord(ctx, "m1")
	gt.NoError(t, err)
	gt.V(t, entry).NotNil()
	gt.Equal(t, data, []byte(want))
}

func TestFetchRecordUnknownID(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	data, entry, err := idx.FetchRecord(ctx, "nope")
	gt.NoError(t, err)
	gt.Nil(t, data)
	gt.Nil(t, entry)
}

func TestSequentialCreatesAreOrdered(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	ids := []model.MemoryID{"m1", "m2", "m3", "m4", "m5"}
	for _, id := range ids {
		_, err := idx.CreateRecord(ctx, "conversations", &model.Memory{
			ID:      id,
			Content: map[string]any{"n": string(id)},
		})
		gt.NoError(t, err)
	}

	loaded, _ := idx.LoadCollection(ctx, "conversations")
	gt.A(t, loaded.Items).Length(len(ids))
	for i, item := range loaded.Items {
		gt.Equal(t, item.ID, ids[i])
		gt.Equal(t, item.Sequence, uint64(i+1))
	}
	gt.Equal(t, loaded.LastSequence, uint64(len(ids)))
}

func TestRemoveRecordIdempotent(t *testing.T) {
	idx, store := setupIndex(t)
	ctx := context.Background()

	entry, err := idx.CreateRecord(ctx, "conversations", &model.Memory{
		ID:        "m1",
		Embedding: []float64{0.1, 0.2},
	})
	gt.NoError(t, err)

	gt.NoError(t, idx.RemoveRecord(ctx, "conversations", "m1"))

	loaded, _ := idx.LoadCollection(ctx, "conversations")
	gt.A(t, loaded.Items).Length(0)
	gt.A(t, loaded.Embeddings).Length(0)

	// The blob is evicted from hot storage
	_, err = store.Fetch(ctx, entry.CID, entry.Filename)
	gt.True(t, errors.Is(err, adapter.ErrNotFound))

	// Second removal is a no-op, never an error
	gt.NoError(t, idx.RemoveRecord(ctx, "conversations", "m1"))
}

func TestFetchAfterRemoveIsNotFound(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	_, err := idx.CreateRecord(ctx, "conversations", &model.Memory{ID: "m1"})
	gt.NoError(t, err)
	gt.NoError(t, idx.RemoveRecord(ctx, "conversations", "m1"))

	data, entry, err := idx.FetchRecord(ctx, "m1")
	gt.NoError(t, err)
	gt.Nil(t, data)
	gt.Nil(t, entry)
}

func TestSaveConflict(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	_, err := idx.CreateRecord(ctx, "conversations", &model.Memory{ID: "m1"})
	gt.NoError(t, err)

	// A save based on a stale collection CID must be rejected
	stale := model.NewCollectionIndex()
	err = idx.Save(ctx, "conversations", stale, "bafystale")
	gt.True(t, errors.Is(err, repository.ErrConflict))

	// The index view is untouched
	loaded, _ := idx.LoadCollection(ctx, "conversations")
	gt.A(t, loaded.Items).Length(1)
}

func TestConcurrentCreatesNoLostUpdate(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = idx.CreateRecord(ctx, "conversations", &model.Memory{
				ID:      model.MemoryID(fmt.Sprintf("m%d", i)),
				Content: map[string]any{"n": i},
			})
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		gt.NoError(t, err)
	}

	// Every append survives with a distinct sequence and the chain verifies
	loaded, _ := idx.LoadCollection(ctx, "conversations")
	gt.A(t, loaded.Items).Length(writers)
	gt.Equal(t, loaded.LastSequence, uint64(writers))
	for i, item := range loaded.Items {
		gt.Equal(t, item.Sequence, uint64(i+1))
	}
	gt.NoError(t, idx.VerifyChain(ctx, "conversations"))
}

func TestCrossPartyResolve(t *testing.T) {
	store, err := adapter.NewLocalStore(t.TempDir())
	gt.NoError(t, err)
	ctx := context.Background()

	writer := repository.New(store, store)
	_, err = writer.CreateRecord(ctx, "conversations", &model.Memory{
		ID:      "m1",
		Content: map[string]any{"text": "shared"},
	})
	gt.NoError(t, err)

	// A second party starts from the writer's published root CID
	reader := repository.New(store, store, repository.WithRootCID(writer.CurrentRootCID()))
	loaded, _ := reader.LoadCollection(ctx, "conversations")
	gt.A(t, loaded.Items).Length(1)
	gt.Equal(t, loaded.Items[0].ID, model.MemoryID("m1"))

	// The writer publishes again; the reader observes the new record after
	// re-pointing at the new root
	_, err = writer.CreateRecord(ctx, "conversations", &model.Memory{ID: "m2"})
	gt.NoError(t, err)

	reader.SetRootCID(writer.CurrentRootCID())
	loaded, _ = reader.LoadCollection(ctx, "conversations")
	gt.A(t, loaded.Items).Length(2)
}

func TestResolveRootUnreachableGateway(t *testing.T) {
	store, err := adapter.NewLocalStore(t.TempDir())
	gt.NoError(t, err)

	idx := repository.New(store, store, repository.WithRootCID("bafynonexistent"))
	root := idx.ResolveRoot(context.Background())
	gt.V(t, root).NotNil()
	gt.Equal(t, len(root.Collections), 0)
}

func TestVerifyChain(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	for _, id := range []model.MemoryID{"m1", "m2", "m3"} {
		_, err := idx.CreateRecord(ctx, "conversations", &model.Memory{ID: id})
		gt.NoError(t, err)
	}

	gt.NoError(t, idx.VerifyChain(ctx, "conversations"))

	// Still verifiable after removing a middle record
	gt.NoError(t, idx.RemoveRecord(ctx, "conversations", "m2"))
	gt.NoError(t, idx.VerifyChain(ctx, "conversations"))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	idx, _ := setupIndex(t)
	ctx := context.Background()

	for _, id := range []model.MemoryID{"m1", "m2", "m3"} {
		_, err := idx.CreateRecord(ctx, "conversations", &model.Memory{ID: id})
		gt.NoError(t, err)
	}

	// Rewrite the index with the middle entry silently dropped, as a
	// truncating writer would
	tampered, baseCID := idx.LoadCollection(ctx, "conversations")
	tampered.Items = append(tampered.Items[:1], tampered.Items[2:]...)
	gt.NoError(t, idx.Save(ctx, "conversations", tampered, baseCID))

	gt.Error(t, idx.VerifyChain(ctx, "conversations"))
}

func TestEmptyCollectionLoadsFresh(t *testing.T) {
	idx, _ := setupIndex(t)

	loaded, cid := idx.LoadCollection(context.Background(), "never-written")
	gt.Equal(t, cid, "")
	gt.A(t, loaded.Items).Length(0)
}
