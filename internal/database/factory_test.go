package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"trail-go/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	t.Run("sqlite store", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "db")
		cfg := config.StoreConfig{Type: "sqlite", DataDir: dir}

		got, err := NewStoreFromConfig(context.Background(), cfg, nil)
		if err != nil {
			t.Fatalf("NewStoreFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if _, err := os.Stat(filepath.Join(dir, "trails.db")); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite without data dir", func(t *testing.T) {
		_, err := NewStoreFromConfig(context.Background(), config.StoreConfig{Type: "sqlite"}, nil)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing data_dir")
		}
	})

	t.Run("postgres without url", func(t *testing.T) {
		_, err := NewStoreFromConfig(context.Background(), config.StoreConfig{Type: "postgres"}, nil)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for missing postgres_url")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := NewStoreFromConfig(context.Background(), config.StoreConfig{Type: "memory"}, nil)
		if err == nil {
			t.Error("NewStoreFromConfig() expected error for non-SQL type")
		}
	})
}
