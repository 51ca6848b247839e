package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"trail-go/internal/config"
	"trail-go/internal/trail"
)

// NewStoreFromConfig creates a SQL-backed Store based on the store config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig, ids trail.IDGenerator) (trail.Store, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite store")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		store, err := NewSQLiteStore(filepath.Join(cfg.DataDir, "trails.db"), ids)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres_url required for postgres store")
		}
		pool, err := ConnectPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		store := NewPostgresStore(pool, ids, pool.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
