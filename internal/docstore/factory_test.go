package docstore

import (
	"context"
	"path/filepath"
	"testing"

	"trail-go/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{
			name: "memory store",
			cfg:  config.StoreConfig{Type: "memory"},
		},
		{
			name: "filesystem store",
			cfg:  config.StoreConfig{Type: "filesystem", FSRoot: filepath.Join(t.TempDir(), "docs")},
		},
		{
			name:    "filesystem store without root",
			cfg:     config.StoreConfig{Type: "filesystem"},
			wantErr: true,
		},
		{
			name:    "s3 store without bucket",
			cfg:     config.StoreConfig{Type: "s3"},
			wantErr: true,
		},
		{
			name:    "sql type is not a document store",
			cfg:     config.StoreConfig{Type: "sqlite", DataDir: t.TempDir()},
			wantErr: true,
		},
		{
			name:    "unknown store type",
			cfg:     config.StoreConfig{Type: "unknown"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStoreFromConfig(context.Background(), tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if s != nil {
					t.Error("NewStoreFromConfig() returned a store alongside an error")
				}
				return
			}
			if s == nil {
				t.Fatal("NewStoreFromConfig() returned nil store")
			}
			s.Close()
		})
	}
}
