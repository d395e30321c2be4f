package adapter

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore is a Cloud Storage backed content-addressed store. CIDs are
// computed locally and objects are laid out as {cid}/{name}, mirroring the
// layout the gateway serves. Implements both BlobStore and Gateway.
type GCSStore struct {
	bucketName string
	client     *storage.Client
}

// GCSOption configures the Cloud Storage client.
type GCSOption func(*[]option.ClientOption)

// WithAnonymousAccess disables credentials, for public read-only buckets.
func WithAnonymousAccess() GCSOption {
	return func(opts *[]option.ClientOption) {
		*opts = append(*opts, option.WithoutAuthentication())
	}
}

// NewGCSStore creates a content-addressed store on the given bucket.
func NewGCSStore(ctx context.Context, bucketName string, opts ...GCSOption) (*GCSStore, error) {
	if bucketName == "" {
		return nil, goerr.New("bucket name is required")
	}

	var clientOpts []option.ClientOption
	for _, opt := range opts {
		opt(&clientOpts)
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client")
	}

	return &GCSStore{
		bucketName: bucketName,
		client:     client,
	}, nil
}

func (x *GCSStore) Upload(ctx context.Context, files []File) (string, error) {
	if len(files) == 0 {
		return "", goerr.New("no files to upload")
	}

	cid, err := computeCID(files)
	if err != nil {
		return "", err
	}

	bucket := x.client.Bucket(x.bucketName)
	for _, f := range files {
		w := bucket.Object(cid + "/" + f.Name).NewWriter(ctx)
		if _, err := w.Write(f.Data); err != nil {
			w.Close()
			return "", goerr.Wrap(err, "failed to write object",
				goerr.V("cid", cid), goerr.V("name", f.Name))
		}
		if err := w.Close(); err != nil {
			return "", goerr.Wrap(err, "failed to finalize object",
				goerr.V("cid", cid), goerr.V("name", f.Name))
		}
	}

	return cid, nil
}

func (x *GCSStore) Remove(ctx context.Context, cid string) error {
	bucket := x.client.Bucket(x.bucketName)
	it := bucket.Objects(ctx, &storage.Query{Prefix: cid + "/"})

	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to list objects", goerr.V("cid", cid))
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil {
			return goerr.Wrap(err, "failed to delete object", goerr.V("object", attrs.Name))
		}
	}
}

func (x *GCSStore) Fetch(ctx context.Context, cid, filename string) ([]byte, error) {
	obj := x.client.Bucket(x.bucketName).Object(cid + "/" + filename)
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(ErrNotFound, "object not in bucket",
				goerr.V("cid", cid), goerr.V("filename", filename))
		}
		return nil, goerr.Wrap(err, "failed to read object", goerr.V("cid", cid))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object body", goerr.V("cid", cid))
	}
	return data, nil
}
