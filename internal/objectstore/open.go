package objectstore

import (
	"context"
	"fmt"

	"github.com/kevinesg/ph-top-headlines-ETL/internal/config"
)

// Open builds the object store selected by cfg.StorageBackend.
func Open(ctx context.Context, cfg config.Config) (ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFile:
		return NewFileStore(cfg.StorageRoot)
	case config.StorageRedis:
		rdb, err := config.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, storageErr("connect", "redis", "", err)
		}
		return &RedisStore{rdb: rdb, owned: true}, nil
	case config.StorageGCS:
		creds, err := cfg.CredentialsFile()
		if err != nil {
			return nil, storageErr("connect", "gcs", "", err)
		}
		return NewGCSStore(ctx, cfg.StorageProject, creds)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStorageBackend, cfg.StorageBackend)
	}
}
