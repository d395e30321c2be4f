package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catalpa-io/mnemo/pkg/adapter"
	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/utils/logging"
)

var (
	// ErrConflict is returned when a save races with another writer and the
	// bounded retry budget is exhausted.
	ErrConflict = goerr.New("collection index conflict")
)

// maxSaveAttempts bounds the optimistic-concurrency retry loop in Update.
const maxSaveAttempts = 3

type cacheEntry struct {
	cid   string
	index *model.CollectionIndex
}

// Index is the layered metadata index over a content-addressed blob network.
// One instance owns one history: the current root CID, the in-process
// collection cache, and the write locks. There is no package-level state;
// construct one Index per configured identity.
type Index struct {
	store   adapter.BlobStore
	gateway adapter.Gateway

	rootMu  sync.Mutex
	rootCID string

	cacheMu sync.RWMutex
	cache   map[string]*cacheEntry

	locks sync.Map // collection name -> *sync.Mutex
}

type Option func(*Index)

// WithRootCID starts the index from a previously published root index,
// e.g. to read another party's history.
func WithRootCID(cid string) Option {
	return func(x *Index) {
		x.rootCID = cid
	}
}

// New creates an Index over the given blob store and gateway.
func New(store adapter.BlobStore, gateway adapter.Gateway, opts ...Option) *Index {
	x := &Index{
		store:   store,
		gateway: gateway,
		cache:   map[string]*cacheEntry{},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Gateway returns the gateway this index reads content through.
func (x *Index) Gateway() adapter.Gateway {
	return x.gateway
}

// CurrentRootCID returns the CID of the latest published root index, or the
// configured starting CID if nothing has been published yet. Sharing this
// value lets another party resolve this history.
func (x *Index) CurrentRootCID() string {
	x.rootMu.Lock()
	defer x.rootMu.Unlock()
	return x.rootCID
}

// SetRootCID re-points the index at a different published root. The
// collection cache is dropped since cached state belongs to the old history.
func (x *Index) SetRootCID(cid string) {
	x.rootMu.Lock()
	x.rootCID = cid
	x.rootMu.Unlock()

	x.cacheMu.Lock()
	x.cache = map[string]*cacheEntry{}
	x.cacheMu.Unlock()
}

// ResolveRoot fetches the latest root index. Any failure (no root configured,
// network error, decode error) yields an empty root rather than an error:
// reads stay available even when the network is not. Callers that need to
// distinguish "empty" from "unreachable" must not exist by design.
func (x *Index) ResolveRoot(ctx context.Context) *model.RootIndex {
	x.rootMu.Lock()
	defer x.rootMu.Unlock()
	return x.resolveRootLocked(ctx)
}

func (x *Index) resolveRootLocked(ctx context.Context) *model.RootIndex {
	if x.rootCID == "" {
		return model.NewRootIndex()
	}

	data, err := x.gateway.Fetch(ctx, x.rootCID, model.RootIndexFilename)
	if err != nil {
		logging.From(ctx).Warn("failed to fetch root index, using empty root",
			"cid", x.rootCID, "error", err)
		return model.NewRootIndex()
	}

	var root model.RootIndex
	if err := json.Unmarshal(data, &root); err != nil {
		logging.From(ctx).Warn("failed to decode root index, using empty root",
			"cid", x.rootCID, "error", err)
		return model.NewRootIndex()
	}
	if root.Collections == nil {
		root.Collections = map[string]model.CollectionRef{}
	}

	return &root
}

// PublishRoot uploads the root index and records the resulting CID as the
// new current root.
func (x *Index) PublishRoot(ctx context.Context, root *model.RootIndex) (string, error) {
	x.rootMu.Lock()
	defer x.rootMu.Unlock()
	return x.publishRootLocked(ctx, root)
}

func (x *Index) publishRootLocked(ctx context.Context, root *model.RootIndex) (string, error) {
	raw, err := json.Marshal(root)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal root index")
	}

	cid, err := x.store.Upload(ctx, []adapter.File{{Name: model.RootIndexFilename, Data: raw}})
	if err != nil {
		return "", goerr.Wrap(err, "failed to upload root index")
	}

	x.rootCID = cid
	logging.From(ctx).Debug("published root index", "cid", cid)
	return cid, nil
}

// LoadCollection returns the collection's current index and the collection
// CID it was loaded from ("" for a collection with no published state). The
// returned index is a private copy; mutations do not leak into the cache.
// Failures at any step degrade to a fresh empty index.
func (x *Index) LoadCollection(ctx context.Context, name string) (*model.CollectionIndex, string) {
	return x.load(ctx, name, true)
}

func (x *Index) load(ctx context.Context, name string, useCache bool) (*model.CollectionIndex, string) {
	if useCache {
		x.cacheMu.RLock()
		entry, ok := x.cache[name]
		x.cacheMu.RUnlock()
		if ok {
			return entry.index.Clone(), entry.cid
		}
	}

	root := x.ResolveRoot(ctx)
	ref, ok := root.Collections[name]
	if !ok {
		return model.NewCollectionIndex(), ""
	}

	data, err := x.gateway.Fetch(ctx, ref.CID, model.CollectionIndexFilename)
	if err != nil {
		logging.From(ctx).Warn("failed to fetch collection index, using empty index",
			"collection", name, "cid", ref.CID, "error", err)
		return model.NewCollectionIndex(), ""
	}

	var idx model.CollectionIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		logging.From(ctx).Warn("failed to decode collection index, using empty index",
			"collection", name, "cid", ref.CID, "error", err)
		return model.NewCollectionIndex(), ""
	}
	if idx.Items == nil {
		idx.Items = []*model.IndexEntry{}
	}

	x.cacheMu.Lock()
	x.cache[name] = &cacheEntry{cid: ref.CID, index: idx.Clone()}
	x.cacheMu.Unlock()

	return &idx, ref.CID
}

// Save persists the collection index and republishes the root index pointing
// at it. baseCID must be the CID the caller observed at load time; if the
// root meanwhile records a different CID for this collection the save fails
// with ErrConflict and nothing is written to cache or root.
func (x *Index) Save(ctx context.Context, name string, idx *model.CollectionIndex, baseCID string) error {
	mu := x.lockFor(name)
	mu.Lock()
	defer mu.Unlock()
	return x.save(ctx, name, idx, baseCID)
}

func (x *Index) save(ctx context.Context, name string, idx *model.CollectionIndex, baseCID string) error {
	x.rootMu.Lock()
	defer x.rootMu.Unlock()

	root := x.resolveRootLocked(ctx)
	if cur := root.Collections[name].CID; cur != baseCID {
		return goerr.Wrap(ErrConflict, "collection changed since load",
			goerr.V("collection", name),
			goerr.V("base", baseCID),
			goerr.V("current", cur))
	}

	idx.Sort()
	idx.LastUpdated = time.Now()

	raw, err := json.Marshal(idx)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal collection index", goerr.V("collection", name))
	}

	cid, err := x.store.Upload(ctx, []adapter.File{{Name: model.CollectionIndexFilename, Data: raw}})
	if err != nil {
		return goerr.Wrap(err, "failed to upload collection index", goerr.V("collection", name))
	}

	root.Collections[name] = model.CollectionRef{CID: cid, LastUpdated: time.Now()}
	if _, err := x.publishRootLocked(ctx, root); err != nil {
		return err
	}

	x.cacheMu.Lock()
	x.cache[name] = &cacheEntry{cid: cid, index: idx.Clone()}
	x.cacheMu.Unlock()

	logging.From(ctx).Debug("saved collection index",
		"collection", name, "cid", cid, "items", len(idx.Items))
	return nil
}

// Update runs a read-modify-write cycle on the collection under its write
// lock. On a conflicting save the index is reloaded from the network, mutate
// is reapplied to the fresh state, and the save retried up to
// maxSaveAttempts times. The conflict check is per instance: it compares
// against the root this Index last published or was re-pointed at, so a root
// published by another process is only observed after SetRootCID.
func (x *Index) Update(ctx context.Context, name string, mutate func(*model.CollectionIndex) error) error {
	mu := x.lockFor(name)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		idx, baseCID := x.load(ctx, name, attempt == 0)

		if err := mutate(idx); err != nil {
			return err
		}

		err := x.save(ctx, name, idx, baseCID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		logging.From(ctx).Info("save conflict, retrying",
			"collection", name, "attempt", attempt+1)
	}

	return goerr.Wrap(ErrConflict, "retry budget exhausted", goerr.V("collection", name))
}

func (x *Index) lockFor(name string) *sync.Mutex {
	mu, _ := x.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
