package encryption

import (
	"testing"

	"trail-go/internal/config"
)

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.EncryptionConfig
		want    string
		wantErr bool
	}{
		{name: "age", cfg: config.EncryptionConfig{Type: "age", PublicKeyPath: "k.pub", PrivateKeyPath: "k.key"}, want: "age"},
		{name: "default is age", cfg: config.EncryptionConfig{PublicKeyPath: "k.pub", PrivateKeyPath: "k.key"}, want: "age"},
		{name: "age without paths", cfg: config.EncryptionConfig{Type: "age"}, wantErr: true},
		{name: "test", cfg: config.EncryptionConfig{Type: "test"}, want: "test"},
		{name: "unknown", cfg: config.EncryptionConfig{Type: "rot13"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.want {
			case "age":
				if _, ok := got.(*AgeEncryptor); !ok {
					t.Errorf("got %T, want *AgeEncryptor", got)
				}
			case "test":
				if _, ok := got.(*TestEncryptor); !ok {
					t.Errorf("got %T, want *TestEncryptor", got)
				}
			}
		})
	}
}
