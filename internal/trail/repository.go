package trail

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Repository is the persistence boundary for trails of a single scope.
// Invalid input is rejected before the store is called; store failures are
// returned wrapped in a PersistenceError and are never retried here.
type Repository struct {
	store       Store
	scope       string
	uniqueNames bool
	clock       Clock
	logger      Logger
}

// RepositoryOptions configures a Repository.
type RepositoryOptions struct {
	// UniqueNames rejects a create whose name is already used in the scope.
	UniqueNames bool
	Clock       Clock
	Logger      Logger
}

// NewRepository creates a Repository bound to scope.
func NewRepository(store Store, scope string, opts RepositoryOptions) *Repository {
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = NewNopLogger()
	}
	return &Repository{
		store:       store,
		scope:       scope,
		uniqueNames: opts.UniqueNames,
		clock:       opts.Clock,
		logger:      opts.Logger,
	}
}

// Scope returns the scope the repository reads and writes.
func (r *Repository) Scope() string { return r.scope }

// UniqueNames reports whether the unique-name policy is active.
func (r *Repository) UniqueNames() bool { return r.uniqueNames }

// TimestampPrecision is the finest timestamp resolution every Store keeps.
// Postgres TIMESTAMPTZ holds microseconds.
const TimestampPrecision = time.Microsecond

// Create persists a new trail and returns its ID. It fills rec in place:
// Name is trimmed, Scope is set to the repository scope, a zero Timestamp
// becomes now, Timestamp is truncated to TimestampPrecision, and ID and
// Version are set once the store accepts the record. On success rec equals
// what List later returns for it.
func (r *Repository) Create(ctx context.Context, rec *Record) (string, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if r.uniqueNames {
		taken, err := r.nameTaken(ctx, rec.Name, "")
		if err != nil {
			return "", err
		}
		if taken {
			return "", NameConflictError(rec.Name)
		}
	}

	rec.Scope = r.scope
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.clock.Now()
	}
	rec.Timestamp = rec.Timestamp.Truncate(TimestampPrecision)

	id, err := r.store.Create(ctx, r.scope, rec)
	if err != nil {
		return "", persistence("creating trail", err)
	}
	rec.ID = id
	if rec.Version == 0 {
		rec.Version = 1
	}
	r.logger.Info("trail created", "id", id, "name", rec.Name, "paths", len(rec.Paths))
	return id, nil
}

// Get returns the trail with the given ID.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := r.store.Get(ctx, r.scope, id)
	if err != nil {
		return nil, persistence("getting trail", err)
	}
	return rec, nil
}

// List returns all trails in the scope.
func (r *Repository) List(ctx context.Context) ([]*Record, error) {
	recs, err := r.store.List(ctx, r.scope)
	if err != nil {
		return nil, persistence("listing trails", err)
	}
	if recs == nil {
		recs = []*Record{}
	}
	return recs, nil
}

// Update merges the name and/or paths of patch into the trail.
func (r *Repository) Update(ctx context.Context, id string, patch Patch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}
	if err := r.store.Update(ctx, r.scope, id, patch); err != nil {
		return persistence("updating trail", err)
	}
	r.logger.Info("trail updated", "id", id, "renamed", patch.Name != nil, "paths", len(patch.Paths))
	return nil
}

// Delete removes the trail. A second delete of the same ID fails with an
// error matching ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, r.scope, id); err != nil {
		return persistence("deleting trail", err)
	}
	r.logger.Info("trail deleted", "id", id)
	return nil
}

// AppendPath reads the trail, appends path to its paths and writes the
// result back conditionally on the version that was read. A concurrent
// writer makes it fail with ErrRevisionConflict instead of losing data.
func (r *Repository) AppendPath(ctx context.Context, id string, path Path) (*Record, error) {
	if len(path) == 0 {
		return nil, &ValidationError{Field: "path", Reason: "must not be empty"}
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.appendTo(ctx, current, path)
}

func (r *Repository) appendTo(ctx context.Context, current *Record, path Path) (*Record, error) {
	paths := MergePaths(current, path)
	if err := r.Update(ctx, current.ID, Patch{Paths: paths, IfVersion: current.Version}); err != nil {
		return nil, err
	}
	next := current.Clone()
	next.Paths = paths
	next.Version = current.Version + 1
	return next, nil
}

// nameTaken reports whether another trail in scope (other than exceptID)
// already uses name.
func (r *Repository) nameTaken(ctx context.Context, name, exceptID string) (bool, error) {
	recs, err := r.List(ctx)
	if err != nil {
		return false, fmt.Errorf("checking name: %w", err)
	}
	for _, rec := range recs {
		if rec.ID != exceptID && SameName(rec.Name, name) {
			return true, nil
		}
	}
	return false, nil
}
