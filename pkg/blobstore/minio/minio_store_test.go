package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
)

func TestStoreKey(t *testing.T) {
	s := NewStore(nil, "bucket", "skims/")
	assert.Equal(t, "skims/out/manifest.json", s.key("out/manifest.json"))

	s = NewStore(nil, "bucket", "")
	assert.Equal(t, "out/trees/Events.arrow", s.key("out/trees/Events.arrow"))
}

func TestMapErr(t *testing.T) {
	err := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	assert.Equal(t, blobstore.ErrNotFound, mapErr(err))

	other := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	assert.NotErrorIs(t, mapErr(other), blobstore.ErrNotFound)
	assert.False(t, isNotFound(other))
}

// TestStoreIntegration requires a running MinIO instance.
// Skip if not available.
func TestStoreIntegration(t *testing.T) {
	client, err := Dial("localhost:9000", "minioadmin", "minioadmin", false)
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	bucket := "test-ntuple"
	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")
	require.NoError(t, store.Put(ctx, "a/b.bin", []byte("payload")))

	data, err := store.Get(ctx, "a/b.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Contains(t, names, "a/b.bin")

	require.NoError(t, store.Delete(ctx, "a/b.bin"))
	_, err = store.Get(ctx, "a/b.bin")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
