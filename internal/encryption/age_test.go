package encryption

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"trail-go/internal/config"
)

func newTestAgeEncryptor(t *testing.T) *AgeEncryptor {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "trail.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "trail.key"),
	}
	return NewAgeEncryptor(cfg)
}

func TestAgeEncryptor_IsConfigured_BeforeSetup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if e.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
}

func TestAgeEncryptor_Setup(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)

	if err := e.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}
	if err := e.Setup("other"); !errors.Is(err, ErrAlreadyConfigured) {
		t.Errorf("second Setup() error = %v, want ErrAlreadyConfigured", err)
	}
}

func TestAgeEncryptor_SetupEmptyPassphrase(t *testing.T) {
	t.Parallel()
	e := newTestAgeEncryptor(t)
	if err := e.Setup("  "); err == nil {
		t.Error("Setup() with blank passphrase should return error")
	}
	if e.IsConfigured() {
		t.Error("IsConfigured() = true after failed Setup")
	}
}

func TestAgeEncryptor_EncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "export json", input: []byte(`{"trails":[{"name":"Thames walk"}]}`)},
		{name: "empty", input: []byte{}},
		{name: "large export", input: bytes.Repeat([]byte("51.5007,-0.1246\n"), 5000)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			passphrase := "test-passphrase"
			e := newTestAgeEncryptor(t)
			if err := e.Setup(passphrase); err != nil {
				t.Fatalf("Setup() error = %v", err)
			}

			var sealed bytes.Buffer
			if err := e.Encrypt(bytes.NewReader(tt.input), &sealed); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if !strings.HasPrefix(sealed.String(), "-----BEGIN AGE ENCRYPTED FILE-----") {
				t.Errorf("sealed output is not armored: %q", sealed.String()[:min(40, sealed.Len())])
			}

			dc, err := e.Unlock(passphrase)
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}

			var plain bytes.Buffer
			if err := dc.Decrypt(bytes.NewReader(sealed.Bytes()), &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("round-trip failed: got %d bytes, want %d bytes", plain.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeEncryptor_UnlockWrongPassphrase(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)
	if err := e.Setup("correct-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	_, err := e.Unlock("wrong-passphrase")
	if !errors.Is(err, ErrWrongPassphrase) {
		t.Errorf("Unlock() error = %v, want ErrWrongPassphrase", err)
	}
}

func TestAgeEncryptor_BeforeSetup(t *testing.T) {
	t.Parallel()

	e := newTestAgeEncryptor(t)

	var buf bytes.Buffer
	if err := e.Encrypt(strings.NewReader("data"), &buf); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Encrypt() error = %v, want ErrNotConfigured", err)
	}
	if _, err := e.Unlock("passphrase"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Unlock() error = %v, want ErrNotConfigured", err)
	}
}
