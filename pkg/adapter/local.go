package adapter

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
)

// LocalStore is a directory-backed content-addressed store. It implements
// both BlobStore and Gateway so a process can run fully offline: uploads are
// laid out as {dir}/{cid}/{name} and fetches read the same layout.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, goerr.New("local store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create local store directory", goerr.V("dir", dir))
	}
	return &LocalStore{dir: dir}, nil
}

func (x *LocalStore) Upload(ctx context.Context, files []File) (string, error) {
	if len(files) == 0 {
		return "", goerr.New("no files to upload")
	}

	cid, err := computeCID(files)
	if err != nil {
		return "", err
	}

	blobDir := filepath.Join(x.dir, cid)
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return "", goerr.Wrap(err, "failed to create blob directory", goerr.V("cid", cid))
	}
	for _, f := range files {
		path := filepath.Join(blobDir, filepath.Base(f.Name))
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			return "", goerr.Wrap(err, "failed to write blob file",
				goerr.V("cid", cid), goerr.V("name", f.Name))
		}
	}

	return cid, nil
}

func (x *LocalStore) Remove(ctx context.Context, cid string) error {
	if err := os.RemoveAll(filepath.Join(x.dir, filepath.Base(cid))); err != nil {
		return goerr.Wrap(err, "failed to remove blob", goerr.V("cid", cid))
	}
	return nil
}

func (x *LocalStore) Fetch(ctx context.Context, cid, filename string) ([]byte, error) {
	path := filepath.Join(x.dir, filepath.Base(cid), filepath.Base(filename))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrNotFound, "blob not in local store",
				goerr.V("cid", cid), goerr.V("filename", filename))
		}
		return nil, goerr.Wrap(err, "failed to read blob", goerr.V("cid", cid))
	}
	return data, nil
}
