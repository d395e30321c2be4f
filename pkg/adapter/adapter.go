package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

var (
	// ErrNotFound is returned by Gateway implementations when the content
	// behind a CID/filename pair does not exist or is not retrievable.
	ErrNotFound = goerr.New("content not found")
)

// File is one named payload within an upload. All files of a single Upload
// call end up under the same CID.
type File struct {
	Name string
	Data []byte
}

// BlobStore uploads immutable content to the content-addressed network and
// returns the CID referencing it. Remove evicts a CID from hot storage only;
// any party already holding the CID may still retrieve the content elsewhere.
type BlobStore interface {
	Upload(ctx context.Context, files []File) (string, error)
	Remove(ctx context.Context, cid string) error
}

// Gateway fetches a named file from the content-addressed network by CID.
type Gateway interface {
	Fetch(ctx context.Context, cid, filename string) ([]byte, error)
}

// Embedder turns text into a fixed-dimension vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
