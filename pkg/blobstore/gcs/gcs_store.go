// Package gcs implements blobstore.Store on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
)

// Store implements blobstore.Store for a GCS bucket.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewStore creates a store over an existing bucket handle.
func NewStore(bucket *storage.BucketHandle, rootPrefix string) *Store {
	return &Store{bucket: bucket, prefix: rootPrefix}
}

// Dial creates a GCS client. An empty credentialsFile uses application
// default credentials.
func Dial(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	return storage.NewClient(ctx, opts...)
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Get downloads the whole object.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := s.bucket.Object(s.key(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, blobstore.ErrNotFound
		}
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Put uploads the object. The object becomes visible when the writer closes.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	w := s.bucket.Object(s.key(name)).NewWriter(ctx)
	w.ContentType = contentType(name)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.bucket.Object(s.key(name)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// List returns the names of all objects under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: s.key(prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		name := strings.TrimPrefix(attrs.Name, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	case ".arrow":
		return "application/vnd.apache.arrow.file"
	}
	return "application/octet-stream"
}
