package trail

import "context"

// Store is the scoped document store trails are persisted in.
// Scopes fully partition visibility: no operation reads or writes a record
// outside the scope it is given.
type Store interface {
	// Create persists a new record in scope and returns the store-assigned ID.
	// The record's ID and Version are set by the store; Version starts at 1.
	Create(ctx context.Context, scope string, rec *Record) (string, error)

	// Get returns the record with the given ID.
	// Returns an error matching ErrNotFound if it does not exist in scope.
	Get(ctx context.Context, scope, id string) (*Record, error)

	// List returns every record in scope. An empty scope yields an empty
	// slice, never an error.
	List(ctx context.Context, scope string) ([]*Record, error)

	// Update applies patch to the record with the given ID.
	// Returns ErrNotFound if the record does not exist and
	// ErrRevisionConflict if patch.IfVersion does not match.
	Update(ctx context.Context, scope, id string, patch Patch) error

	// Delete removes the record. Deleting a missing record returns ErrNotFound.
	Delete(ctx context.Context, scope, id string) error

	// Close releases backend resources.
	Close() error
}
