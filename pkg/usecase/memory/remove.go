package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/catalpa-io/mnemo/pkg/model"
	"github.com/catalpa-io/mnemo/pkg/policy"
)

// Remove retracts a memory from the collection index and requests hot-storage
// eviction of its blob. Retraction of an unknown id is a no-op; eviction is
// best-effort and never fails the call.
func (u *UseCase) Remove(ctx context.Context, collection string, id model.MemoryID) error {
	if collection == "" {
		return goerr.New("collection name is required")
	}

	if err := u.gate.Allow(ctx, policy.Input{
		Action:     "remove",
		Collection: collection,
	}); err != nil {
		return err
	}

	return u.repo.RemoveRecord(ctx, collection, id)
}
