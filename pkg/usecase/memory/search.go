package memory

import (
	"context"
	"math"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/viterin/vek"

	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/utils/logging"
)

// SearchInput describes a similarity query over one collection.
type SearchInput struct {
	Collection string
	Vector     []float64
	Threshold  float64
	Count      int
	RoomID     string

	// Query, when set, is embedded via the configured embedder and used as
	// the search vector. Ignored when Vector is given.
	Query string
}

// SearchResult pairs a matched memory with its similarity score.
type SearchResult struct {
	Memory     *model.Memory
	Similarity float64
}

// Search runs a linear cosine-similarity scan over the collection's
// embedding side-table. Matches at or above the threshold are returned in
// descending similarity order (ties keep side-table order), truncated to
// Count, filtered by RoomID, and resolved to their record contents.
//
// A zero-magnitude vector on either side yields NaN, which satisfies no
// positive threshold and is therefore excluded. That is deliberate: a record
// without a meaningful vector must never match.
func (u *UseCase) Search(ctx context.Context, input SearchInput) ([]*SearchResult, error) {
	if input.Collection == "" {
		return nil, goerr.New("collection name is required")
	}

	query := input.Vector
	if len(query) == 0 && input.Query != "" {
		if u.embedder == nil {
			return nil, goerr.New("no embedder configured for text query")
		}
		vector, err := u.embedder.Embed(ctx, input.Query)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed search query")
		}
		query = vector
	}
	if len(query) == 0 {
		return nil, goerr.New("search vector is required")
	}

	idx, _ := u.repo.LoadCollection(ctx, input.Collection)

	type scored struct {
		id         model.MemoryID
		similarity float64
	}
	var matches []scored
	for _, e := range idx.Embeddings {
		if len(e.Vector) != len(query) {
			continue
		}
		similarity := vek.CosineSimilarity(query, e.Vector)
		if math.IsNaN(similarity) || similarity < input.Threshold {
			continue
		}
		matches = append(matches, scored{id: e.ID, similarity: similarity})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].similarity > matches[j].similarity
	})
	if input.Count > 0 && len(matches) > input.Count {
		matches = matches[:input.Count]
	}

	results := make([]*SearchResult, 0, len(matches))
	for _, match := range matches {
		entry := idx.Entry(match.id)
		if entry == nil {
			// Embedding left behind by a removal without cleanup
			continue
		}
		if input.RoomID != "" && entry.RoomID != input.RoomID {
			continue
		}

		m, err := u.fetchMemory(ctx, entry)
		if err != nil {
			logging.From(ctx).Warn("skipping unreadable search match",
				"collection", input.Collection, "id", entry.ID, "error", err)
			continue
		}
		results = append(results, &SearchResult{Memory: m, Similarity: match.similarity})
	}

	return results, nil
}
