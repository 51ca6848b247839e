package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trail-go/internal/trail"
)

// Recovery is a captured path that could not be saved, kept on disk so it
// can be saved later with Recover.
type Recovery struct {
	Scope      string     `json:"scope"`
	Name       string     `json:"name,omitempty"`
	ContinueID string     `json:"continue_id,omitempty"`
	CapturedAt time.Time  `json:"captured_at"`
	Path       trail.Path `json:"path"`
}

// recoveryDir returns the directory recovery files are written to.
func (a *TrailApp) recoveryDir() string {
	return filepath.Join(a.cfg.BaseDir, "recovery")
}

func (a *TrailApp) writeRecovery(opts RecordOptions, path trail.Path) (string, error) {
	dir := a.recoveryDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating recovery directory: %w", err)
	}

	rec := Recovery{
		Scope:      a.session.Scope(),
		Name:       opts.Name,
		ContinueID: opts.ContinueID,
		CapturedAt: time.Now().UTC(),
		Path:       path,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding recovery file: %w", err)
	}

	f, err := os.CreateTemp(dir, "unsaved-*.json")
	if err != nil {
		return "", fmt.Errorf("creating recovery file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("writing recovery file: %w", err)
	}
	a.logger.Warn("captured path kept for recovery", "file", f.Name(), "points", len(path))
	return f.Name(), nil
}

// ReadRecovery decodes a recovery file.
func ReadRecovery(file string) (*Recovery, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading recovery file: %w", err)
	}
	var rec Recovery
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding recovery file %s: %w", file, err)
	}
	return &rec, nil
}

// Recover saves the path held in a recovery file, either appended to the
// trail it was recorded for or as a new trail. name, if non-empty,
// replaces the name stored in the file. The file is removed once the path
// is saved.
func (a *TrailApp) Recover(ctx context.Context, file, name string) (*trail.Record, error) {
	rec, err := a.recover(ctx, file, name)
	return rec, a.op.Track(err)
}

func (a *TrailApp) recover(ctx context.Context, file, name string) (*trail.Record, error) {
	r, err := ReadRecovery(file)
	if err != nil {
		return nil, err
	}
	if r.Scope != a.session.Scope() {
		return nil, fmt.Errorf("recovery file belongs to scope %q, not %q", r.Scope, a.session.Scope())
	}
	if name == "" {
		name = r.Name
	}

	s := a.session
	s.ClearContinuation()
	if r.ContinueID != "" {
		if err := s.ContinueTrail(ctx, r.ContinueID); err != nil {
			return nil, err
		}
	}
	saved, err := s.SavePath(ctx, name, r.Path)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(file); err != nil {
		a.logger.Warn("removing recovery file failed", "file", file, "error", err)
	}
	return saved, nil
}
