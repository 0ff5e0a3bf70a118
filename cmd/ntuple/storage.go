package main

import (
	"context"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore/gcs"
	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore/minio"
	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore/s3"
	"github.com/ajitpratap0/nebula-ntuple/pkg/config"
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// openStore builds the blob backend selected by cfg.
func openStore(ctx context.Context, cfg config.StorageConfig) (blobstore.Store, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		return blobstore.NewLocalStore(cfg.Root), nil
	case config.BackendMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BackendS3:
		st, err := s3.NewStoreFromRegion(ctx, cfg.Region, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "configure S3 storage")
		}
		return st, nil
	case config.BackendMinio:
		client, err := minio.Dial(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.Secure)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "configure MinIO storage")
		}
		return minio.NewStore(client, cfg.Bucket, cfg.Prefix), nil
	case config.BackendGCS:
		client, err := gcs.Dial(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "configure GCS storage")
		}
		return gcs.NewStore(client.Bucket(cfg.Bucket), cfg.Prefix), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown storage backend %q", cfg.Backend)
}
