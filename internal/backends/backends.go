// Package backends opens the metadata store and asset repository named by
// configuration. Both binaries share it so they agree on where assets live.
package backends

import (
	"context"
	"fmt"
	"log"

	"github.com/dunamismax/pixelshelf/internal/config"
	"github.com/dunamismax/pixelshelf/internal/pipeline"
	"github.com/dunamismax/pixelshelf/internal/storage"
	"github.com/dunamismax/pixelshelf/internal/store"
)

const objectPrefix = "images"

// OpenAssetStore returns the configured store and a func releasing it.
func OpenAssetStore(ctx context.Context, cfg config.MetadataConfig, logger *log.Logger) (store.AssetStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", config.MetadataBackendFile:
		fileStore, err := store.NewFileAssetStore(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open metadata file: %w", err)
		}
		logger.Printf("metadata backend=file path=%s", fileStore.Path())
		return fileStore, noop, nil
	case config.MetadataBackendPostgres:
		pgStore, err := store.NewPostgresAssetStore(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open metadata database: %w", err)
		}
		logger.Printf("metadata backend=postgres")
		return pgStore, pgStore.Close, nil
	case config.MetadataBackendMemory:
		logger.Printf("metadata backend=memory records are lost on restart")
		return store.NewMemoryAssetStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported metadata backend %q", cfg.Backend)
	}
}

// OpenRepository returns the byte store for assets encoded as format.
func OpenRepository(ctx context.Context, assetCfg config.AssetConfig, storageCfg config.StorageConfig, format string, logger *log.Logger) (storage.Repository, error) {
	ext := pipeline.ExtensionForFormat(format)

	switch assetCfg.Backend {
	case "", config.AssetBackendLocal:
		repo, err := storage.NewLocalRepository(assetCfg.ImagesDir, ext)
		if err != nil {
			return nil, fmt.Errorf("open images dir: %w", err)
		}
		logger.Printf("asset backend=local dir=%s ext=%s", assetCfg.ImagesDir, ext)
		return repo, nil
	case config.AssetBackendMinio:
		client, err := storage.NewClient(storage.Config{
			Endpoint: storageCfg.Endpoint,
			Access:   storageCfg.AccessKey,
			Secret:   storageCfg.SecretKey,
			Bucket:   storageCfg.Bucket,
			Region:   storageCfg.Region,
			UseSSL:   storageCfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create object storage client: %w", err)
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		repo, err := storage.NewObjectRepository(client, objectPrefix, ext, pipeline.ContentTypeForFormat(format))
		if err != nil {
			return nil, err
		}
		logger.Printf("asset backend=minio endpoint=%s bucket=%s ext=%s", storageCfg.Endpoint, client.Bucket(), ext)
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported asset backend %q", assetCfg.Backend)
	}
}
