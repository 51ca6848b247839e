package docstore

import (
	"context"
	"fmt"

	"trail-go/internal/config"
	"trail-go/internal/trail"
)

// NewStoreFromConfig creates a document Store based on the store config type.
// SQL-backed types are handled by the database package.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, ids trail.IDGenerator) (trail.Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(ids), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem store requires fs_root to be set")
		}
		store, err := NewFileSystemStore(cfg.FSRoot, ids)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
		}
		store, err := NewS3StoreFromOptions(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		}, ids)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown document store type: %s", cfg.Type)
	}
}
