package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/policy"
)

// CreateInput describes one memory to store.
type CreateInput struct {
	Collection string
	Memory     *model.Memory

	// EmbedText, when set, is embedded via the configured embedder and the
	// resulting vector attached to the memory before upload.
	EmbedText string
}

// Create stores a memory record in the collection. The policy gate (if any)
// is consulted first; embedding happens before upload so the index entry and
// embedding side-table are written together.
func (u *UseCase) Create(ctx context.Context, input CreateInput) (*model.IndexEntry, error) {
	if input.Collection == "" {
		return nil, goerr.New("collection name is required")
	}
	if input.Memory == nil {
		return nil, goerr.New("memory is required")
	}

	if err := u.gate.Allow(ctx, policy.Input{
		Action:     "create",
		Collection: input.Collection,
		RoomID:     input.Memory.RoomID,
		AgentID:    input.Memory.AgentID,
	}); err != nil {
		return nil, err
	}

	if input.EmbedText != "" {
		if u.embedder == nil {
			return nil, goerr.New("no embedder configured for text embedding")
		}
		vector, err := u.embedder.Embed(ctx, input.EmbedText)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed memory text")
		}
		input.Memory.Embedding = vector
	}

	return u.repo.CreateRecord(ctx, input.Collection, input.Memory)
}
