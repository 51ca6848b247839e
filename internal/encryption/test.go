package encryption

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"trail-go/internal/trail"
)

// testHeader marks payloads sealed by TestEncryptor.
var testHeader = []byte("TRAILENC")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prefixes a
// fixed header on Encrypt and strips it on Decrypt. Unlock only succeeds
// with the passphrase given to Setup.
type TestEncryptor struct {
	mu         sync.Mutex
	passphrase string
	configured bool
}

var _ trail.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor that is already configured with
// an empty passphrase.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{configured: true}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passphrase = passphrase
	e.configured = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (trail.DecryptionContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.configured {
		return nil, ErrNotConfigured
	}
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.configured
}

// TestDecryptionContext strips the header written by TestEncryptor.
type TestDecryptionContext struct{}

var _ trail.DecryptionContext = TestDecryptionContext{}

func (TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("not a test-sealed payload")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
