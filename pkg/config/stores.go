package config

import (
	"context"
	"fmt"

	"github.com/SajanLamichhane/chunkflow/pkg/service"
	"github.com/SajanLamichhane/chunkflow/pkg/store/blob"
	blobfs "github.com/SajanLamichhane/chunkflow/pkg/store/blob/fs"
	blobmemory "github.com/SajanLamichhane/chunkflow/pkg/store/blob/memory"
	blobs3 "github.com/SajanLamichhane/chunkflow/pkg/store/blob/s3"
	"github.com/SajanLamichhane/chunkflow/pkg/store/manifest"
	manifestbadger "github.com/SajanLamichhane/chunkflow/pkg/store/manifest/badger"
	manifestmemory "github.com/SajanLamichhane/chunkflow/pkg/store/manifest/memory"
)

// CreateBlobStore creates the configured chunk blob store.
func CreateBlobStore(ctx context.Context, cfg BlobStoreConfig) (blob.Store, error) {
	switch cfg.Type {
	case "memory":
		return blobmemory.New(), nil
	case "fs", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("fs blob store requires path to be set")
		}
		return blobfs.New(cfg.Path)
	case "s3":
		store, err := blobs3.NewFromConfig(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob store type: %q", cfg.Type)
	}
}

// CreateManifestStore creates the configured session and manifest store.
func CreateManifestStore(cfg ManifestStoreConfig) (manifest.Store, error) {
	switch cfg.Type {
	case "memory":
		return manifestmemory.New(), nil
	case "badger", "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger manifest store requires path to be set")
		}
		return manifestbadger.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown manifest store type: %q", cfg.Type)
	}
}

// CreateTokenService creates the upload token service from
// configuration.
func CreateTokenService(cfg TokenConfig) (*service.TokenService, error) {
	return service.NewTokenService(service.TokenConfig{
		Secret:        cfg.Secret,
		Issuer:        cfg.Issuer,
		TokenDuration: cfg.Duration,
	})
}
