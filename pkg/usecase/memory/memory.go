package memory

import (
	"github.com/catalpa-io/mnemo/pkg/adapter"
	"github.com/catalpa-io/mnemo/pkg/policy"
	"github.com/catalpa-io/mnemo/pkg/repository"
)

// UseCase wires the memory operations to the index, an optional embedder for
// text inputs, and an optional write-policy gate.
type UseCase struct {
	repo     *repository.Index
	embedder adapter.Embedder
	gate     *policy.Gate
}

type Option func(*UseCase)

// WithEmbedder enables text embedding on create and search.
func WithEmbedder(e adapter.Embedder) Option {
	return func(u *UseCase) {
		u.embedder = e
	}
}

// WithPolicy gates create and remove operations.
func WithPolicy(g *policy.Gate) Option {
	return func(u *UseCase) {
		u.gate = g
	}
}

// New creates a UseCase over the given index.
func New(repo *repository.Index, opts ...Option) *UseCase {
	u := &UseCase{repo: repo}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Repository exposes the underlying index for root CID queries.
func (u *UseCase) Repository() *repository.Index {
	return u.repo
}
