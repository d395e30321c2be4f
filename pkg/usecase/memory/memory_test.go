package memory_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/catalpa-io/mnemo/pkg/adapter"
	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/policy"
	"github.com/catalpa-io/mnemo/pkg/repository"
	"github.com/catalpa-io/mnemo/pkg/usecase/memory"
)

func setupUseCase(t *testing.T, opts ...memory.Option) *memory.UseCase {
	store, err := adapter.NewLocalStore(t.TempDir())
	gt.NoError(t, err)
	return memory.New(repository.New(store, store), opts...)
}

func vector(v float64, dims int) []float64 {
	vec := make([]float64, dims)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

func TestCreateAndGetByRoom(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	_, err := uc.Create(ctx, memory.CreateInput{
		Collection: "conversations",
		Memory: &model.Memory{
			ID:      "m1",
			RoomID:  "room-1",
			AgentID: "agent-1",
			Content: map[string]any{"text": "hello"},
		},
	})
	gt.NoError(t, err)

	memories, err := uc.Get(ctx, memory.GetInput{
		Collection: "conversations",
		RoomID:     "room-1",
		AgentID:    "agent-1",
	})
	gt.NoError(t, err)
	gt.A(t, memories).Length(1)
	gt.Equal(t, memories[0].ID, model.MemoryID("m1"))
	gt.Equal(t, memories[0].Content["text"], "hello")

	// Other rooms see nothing
	memories, err = uc.Get(ctx, memory.GetInput{
		Collection: "conversations",
		RoomID:     "room-2",
	})
	gt.NoError(t, err)
	gt.A(t, memories).Length(0)
}

func TestGetNewestFirstWithCount(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	for _, id := range []model.MemoryID{"m1", "m2", "m3"} {
		_, err := uc.Create(ctx, memory.CreateInput{
			Collection: "conversations",
			Memory:     &model.Memory{ID: id, RoomID: "room-1"},
		})
		gt.NoError(t, err)
	}

	memories, err := uc.Get(ctx, memory.GetInput{
		Collection: "conversations",
		RoomID:     "room-1",
		Count:      2,
	})
	gt.NoError(t, err)
	gt.A(t, memories).Length(2)
	gt.Equal(t, memories[0].ID, model.MemoryID("m3"))
	gt.Equal(t, memories[1].ID, model.MemoryID("m2"))
}

func TestGetUniqueFilter(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	for _, m := range []*model.Memory{
		{ID: "m1", RoomID: "room-1", Unique: true},
		{ID: "m2", RoomID: "room-1"},
		{ID: "m3", RoomID: "room-1", Unique: true},
	} {
		_, err := uc.Create(ctx, memory.CreateInput{
			Collection: "facts",
			Memory:     m,
		})
		gt.NoError(t, err)
	}

	memories, err := uc.Get(ctx, memory.GetInput{
		Collection: "facts",
		RoomID:     "room-1",
		Unique:     true,
	})
	gt.NoError(t, err)
	gt.A(t, memories).Length(2)
	gt.Equal(t, memories[0].ID, model.MemoryID("m3"))
	gt.Equal(t, memories[1].ID, model.MemoryID("m1"))

	// Count applies after the unique filter
	memories, err = uc.Get(ctx, memory.GetInput{
		Collection: "facts",
		Unique:     true,
		Count:      1,
	})
	gt.NoError(t, err)
	gt.A(t, memories).Length(1)
	gt.Equal(t, memories[0].ID, model.MemoryID("m3"))
}

func TestSearchByIdenticalEmbedding(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	emb := vector(0.1, 128)
	for _, id := range []model.MemoryID{"m1", "m2"} {
		_, err := uc.Create(ctx, memory.CreateInput{
			Collection: "conversations",
			Memory: &model.Memory{
				ID:        id,
				RoomID:    "room-1",
				Embedding: emb,
			},
		})
		gt.NoError(t, err)
	}

	results, err := uc.Search(ctx, memory.SearchInput{
		Collection: "conversations",
		Vector:     emb,
		Threshold:  0.8,
		Count:      10,
		RoomID:     "room-1",
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(2)

	// Identical vectors score 1.0 and ties keep original order
	gt.Number(t, results[0].Similarity).GreaterOrEqual(0.999)
	gt.Equal(t, results[0].Memory.ID, model.MemoryID("m1"))
	gt.Equal(t, results[1].Memory.ID, model.MemoryID("m2"))
}

func TestSearchThresholdAndRoomFilter(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	put := func(id model.MemoryID, room string, emb []float64) {
		_, err := uc.Create(ctx, memory.CreateInput{
			Collection: "conversations",
			Memory:     &model.Memory{ID: id, RoomID: room, Embedding: emb},
		})
		gt.NoError(t, err)
	}

	put("close", "room-1", []float64{1, 0, 0})
	put("orthogonal", "room-1", []float64{0, 1, 0})
	put("other-room", "room-2", []float64{1, 0, 0})

	results, err := uc.Search(ctx, memory.SearchInput{
		Collection: "conversations",
		Vector:     []float64{1, 0, 0},
		Threshold:  0.5,
		Count:      10,
		RoomID:     "room-1",
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(1)
	gt.Equal(t, results[0].Memory.ID, model.MemoryID("close"))
}

func TestSearchZeroVectorNeverMatches(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	_, err := uc.Create(ctx, memory.CreateInput{
		Collection: "conversations",
		Memory:     &model.Memory{ID: "m1", Embedding: []float64{0, 0, 0}},
	})
	gt.NoError(t, err)

	// Zero stored vector: cosine is NaN, excluded even at threshold 0
	results, err := uc.Search(ctx, memory.SearchInput{
		Collection: "conversations",
		Vector:     []float64{1, 0, 0},
		Threshold:  0,
		Count:      10,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(0)

	// Zero query vector matches nothing either
	_, err = uc.Create(ctx, memory.CreateInput{
		Collection: "conversations",
		Memory:     &model.Memory{ID: "m2", Embedding: []float64{1, 0, 0}},
	})
	gt.NoError(t, err)

	results, err = uc.Search(ctx, memory.SearchInput{
		Collection: "conversations",
		Vector:     []float64{0, 0, 0},
		Threshold:  0.8,
		Count:      10,
	})
	gt.NoError(t, err)
	gt.A(t, results).Length(0)
}

func TestRemoveRetractsFromGetAndFetch(t *testing.T) {
	uc := setupUseCase(t)
	ctx := context.Background()

	_, err := uc.Create(ctx, memory.CreateInput{
		Collection: "conversations",
		Memory:     &model.Memory{ID: "m1", RoomID: "room-1"},
	})
	gt.NoError(t, err)

	gt.NoError(t, uc.Remove(ctx, "conversations", "m1"))

	memories, err := uc.Get(ctx, memory.GetInput{Collection: "conversations", RoomID: "room-1"})
	gt.NoError(t, err)
	gt.A(t, memories).Length(0)

	data, entry, err := uc.Repository().FetchRecord(ctx, "m1")
	gt.NoError(t, err)
	gt.Nil(t, data)
	gt.Nil(t, entry)

	// Removing again stays a no-op
	gt.NoError(t, uc.Remove(ctx, "conversations", "m1"))
}

func TestPolicyGatesWrites(t *testing.T) {
	dir := t.TempDir()
	rego := `package mnemo

default allow = false

allow if {
	input.action == "create"
	input.collection == "conversations"
}
`
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "memory.rego"), []byte(rego), 0o644))

	ctx := context.Background()
	gate, err := policy.Load(ctx, dir)
	gt.NoError(t, err)

	uc := setupUseCase(t, memory.WithPolicy(gate))

	_, err = uc.Create(ctx, memory.CreateInput{
		Collection: "conversations",
		Memory:     &model.Memory{ID: "m1"},
	})
	gt.NoError(t, err)

	_, err = uc.Create(ctx, memory.CreateInput{
		Collection: "forbidden",
		Memory:     &model.Memory{ID: "m2"},
	})
	gt.True(t, errors.Is(err, policy.ErrDenied))

	err = uc.Remove(ctx, "conversations", "m1")
	gt.True(t, errors.Is(err, policy.ErrDenied))
}

func TestCreateRequiresEmbedderForText(t *testing.T) {
	uc := setupUseCase(t)

	_, err := uc.Create(context.Background(), memory.CreateInput{
		Collection: "conversations",
		Memory:     &model.Memory{ID: "m1"},
		EmbedText:  "some text",
	})
	gt.Error(t, err)
}
