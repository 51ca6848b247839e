package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"trail-go/internal/trail"
)

// exportVersion is bumped when the export document changes shape.
const exportVersion = 1

// exportDocument is the plaintext of an encrypted export.
type exportDocument struct {
	Version    int             `json:"version"`
	Scope      string          `json:"scope"`
	ExportedAt time.Time       `json:"exported_at"`
	Trails     []*trail.Record `json:"trails"`
}

// ImportResult reports what an import did.
type ImportResult struct {
	Imported []string
	// Skipped holds the names rejected by validation or the unique-name policy.
	Skipped []string
}

// Export writes every trail of the scope, encrypted to the configured
// public key. It returns the number of trails written.
func (a *TrailApp) Export(ctx context.Context, w io.Writer) (int, error) {
	n, err := a.export(ctx, w)
	return n, a.op.Track(err)
}

func (a *TrailApp) export(ctx context.Context, w io.Writer) (int, error) {
	if !a.encryptor.IsConfigured() {
		return 0, fmt.Errorf("export requires keys: run 'trail keys init' first")
	}
	recs, err := a.session.Repository().List(ctx)
	if err != nil {
		return 0, err
	}

	doc := exportDocument{
		Version:    exportVersion,
		Scope:      a.session.Scope(),
		ExportedAt: time.Now().UTC(),
		Trails:     recs,
	}
	plain, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encoding export: %w", err)
	}
	if err := a.encryptor.Encrypt(bytes.NewReader(plain), w); err != nil {
		return 0, fmt.Errorf("encrypting export: %w", err)
	}
	a.logger.Info("trails exported", "scope", doc.Scope, "count", len(recs))
	return len(recs), nil
}

// Import decrypts an export with passphrase and creates each trail in the
// current scope. Trails are created through the repository, so the same
// validation and unique-name policy apply as for a recording. Imported
// trails get new IDs and keep their original timestamps.
func (a *TrailApp) Import(ctx context.Context, r io.Reader, passphrase string) (*ImportResult, error) {
	res, err := a.importTrails(ctx, r, passphrase)
	return res, a.op.Track(err)
}

func (a *TrailApp) importTrails(ctx context.Context, r io.Reader, passphrase string) (*ImportResult, error) {
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking keys: %w", err)
	}

	var plain bytes.Buffer
	if err := dc.Decrypt(r, &plain); err != nil {
		return nil, fmt.Errorf("decrypting export: %w", err)
	}
	var doc exportDocument
	if err := json.Unmarshal(plain.Bytes(), &doc); err != nil {
		return nil, fmt.Errorf("decoding export: %w", err)
	}
	if doc.Version != exportVersion {
		return nil, fmt.Errorf("unsupported export version %d", doc.Version)
	}

	repo := a.session.Repository()
	res := &ImportResult{Imported: []string{}, Skipped: []string{}}
	for _, t := range doc.Trails {
		rec := &trail.Record{Name: t.Name, Paths: t.Paths, Timestamp: t.Timestamp}
		id, err := repo.Create(ctx, rec)
		switch {
		case err == nil:
			res.Imported = append(res.Imported, id)
		case errors.Is(err, trail.ErrValidation), errors.Is(err, trail.ErrConflict):
			a.logger.Warn("skipping imported trail", "name", t.Name, "error", err)
			res.Skipped = append(res.Skipped, t.Name)
		default:
			a.reconcile(ctx, res)
			return res, err
		}
	}
	a.reconcile(ctx, res)
	a.logger.Info("trails imported", "from_scope", doc.Scope, "imported", len(res.Imported), "skipped", len(res.Skipped))
	return res, nil
}

func (a *TrailApp) reconcile(ctx context.Context, res *ImportResult) {
	if len(res.Imported) == 0 {
		return
	}
	last := res.Imported[len(res.Imported)-1]
	if err := a.session.Catalog().Reconcile(ctx, trail.ChangeCreated, last); err != nil {
		a.logger.Warn("catalog refresh after import failed", "error", err)
	}
}
