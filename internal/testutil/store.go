package testutil

import (
	"context"
	"testing"

	"trail-go/internal/docstore"
	"trail-go/internal/trail"
)

// NewTestStore returns an in-memory store with sequential IDs, closed at
// the end of the test.
func NewTestStore(t *testing.T) trail.Store {
	t.Helper()
	s := docstore.NewMemoryStore(NewStubIDGenerator())
	t.Cleanup(func() { s.Close() })
	return s
}

// FlakyStore wraps a Store and fails selected operations on demand.
type FlakyStore struct {
	trail.Store

	CreateErr error
	ListErr   error
	UpdateErr error
	DeleteErr error

	// BeforeUpdate runs before every Update is forwarded.
	BeforeUpdate func()
}

func (s *FlakyStore) Create(ctx context.Context, scope string, rec *trail.Record) (string, error) {
	if s.CreateErr != nil {
		return "", s.CreateErr
	}
	return s.Store.Create(ctx, scope, rec)
}

func (s *FlakyStore) List(ctx context.Context, scope string) ([]*trail.Record, error) {
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.Store.List(ctx, scope)
}

func (s *FlakyStore) Update(ctx context.Context, scope, id string, patch trail.Patch) error {
	if s.BeforeUpdate != nil {
		s.BeforeUpdate()
	}
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	return s.Store.Update(ctx, scope, id, patch)
}

func (s *FlakyStore) Delete(ctx context.Context, scope, id string) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	return s.Store.Delete(ctx, scope, id)
}
