package trail

import (
	"context"
	"errors"
	"fmt"
)

// MergePaths returns existing.Paths followed by next. The existing paths are
// copied, never modified.
func MergePaths(existing *Record, next Path) []Path {
	out := make([]Path, 0, len(existing.Paths)+1)
	for _, p := range existing.Paths {
		out = append(out, p.Clone())
	}
	return append(out, next.Clone())
}

// Merger appends a freshly recorded path to an existing trail selected for
// continuation.
type Merger struct {
	repo   *Repository
	logger Logger
}

// NewMerger creates a Merger writing through repo.
func NewMerger(repo *Repository, logger Logger) *Merger {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Merger{repo: repo, logger: logger}
}

// Append writes selected.Paths + [path] back to the store. The write is
// conditional on selected.Version, so appending onto a stale copy fails
// with ErrRevisionConflict rather than dropping another writer's segment.
func (m *Merger) Append(ctx context.Context, selected *Record, path Path) (*Record, error) {
	if selected == nil {
		return nil, &ValidationError{Field: "trail", Reason: "no trail selected"}
	}
	if len(path) == 0 {
		return nil, ErrNothingToSave
	}
	updated, err := m.repo.appendTo(ctx, selected, path)
	if err != nil {
		if errors.Is(err, ErrRevisionConflict) {
			m.logger.Warn("trail changed since it was selected", "id", selected.ID, "version", selected.Version)
		}
		return nil, fmt.Errorf("appending path to %s: %w", selected.ID, err)
	}
	m.logger.Info("path appended", "id", selected.ID, "segments", len(updated.Paths))
	return updated, nil
}
