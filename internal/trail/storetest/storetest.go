// Package storetest provides a behavioural test suite every trail.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trail-go/internal/trail"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) trail.Store

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// Walk returns a two-point record named name, created offset after a fixed base time.
func Walk(name string, offset time.Duration) *trail.Record {
	return &trail.Record{
		Name: name,
		Paths: []trail.Path{{
			{Latitude: 51.5007, Longitude: -0.1246},
			{Latitude: 51.5008, Longitude: -0.1247},
		}},
		Timestamp: base.Add(offset),
	}
}

// Run runs the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	open := func(t *testing.T) trail.Store {
		t.Helper()
		s := newStore(t)
		t.Cleanup(func() { s.Close() })
		return s
	}
	ctx := context.Background()

	t.Run("create then get round trips", func(t *testing.T) {
		s := open(t)
		in := Walk("Thames walk", 0)

		id, err := s.Create(ctx, "club", in)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		got, err := s.Get(ctx, "club", id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "club", got.Scope)
		assert.Equal(t, "Thames walk", got.Name)
		assert.Equal(t, in.Paths, got.Paths)
		assert.True(t, in.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", got.Timestamp, in.Timestamp)
		assert.Equal(t, int64(1), got.Version)
	})

	// The Postgres store is only exercised through pgxmock, which cannot
	// show the microsecond rounding of TIMESTAMPTZ; every store must keep
	// at least trail.TimestampPrecision.
	t.Run("timestamp keeps microseconds", func(t *testing.T) {
		s := open(t)
		in := Walk("Ridge", 123456*time.Microsecond)

		id, err := s.Create(ctx, "club", in)
		require.NoError(t, err)

		got, err := s.Get(ctx, "club", id)
		require.NoError(t, err)
		assert.True(t, in.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", got.Timestamp, in.Timestamp)
	})

	t.Run("list of empty scope is empty", func(t *testing.T) {
		s := open(t)
		got, err := s.List(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("list returns scope records oldest first", func(t *testing.T) {
		s := open(t)
		idB, err := s.Create(ctx, "club", Walk("B", time.Hour))
		require.NoError(t, err)
		idA, err := s.Create(ctx, "club", Walk("A", 0))
		require.NoError(t, err)
		_, err = s.Create(ctx, "other", Walk("C", 0))
		require.NoError(t, err)

		got, err := s.List(ctx, "club")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, idA, got[0].ID)
		assert.Equal(t, idB, got[1].ID)
	})

	t.Run("scopes are isolated", func(t *testing.T) {
		s := open(t)
		id, err := s.Create(ctx, "club", Walk("A", 0))
		require.NoError(t, err)

		_, err = s.Get(ctx, "other", id)
		assert.ErrorIs(t, err, trail.ErrNotFound)
		assert.ErrorIs(t, s.Update(ctx, "other", id, rename("X")), trail.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "other", id), trail.ErrNotFound)

		got, err := s.Get(ctx, "club", id)
		require.NoError(t, err)
		assert.Equal(t, "A", got.Name)
	})

	t.Run("update merges fields and bumps version", func(t *testing.T) {
		s := open(t)
		in := Walk("A", 0)
		id, err := s.Create(ctx, "club", in)
		require.NoError(t, err)

		require.NoError(t, s.Update(ctx, "club", id, rename("Renamed")))
		got, err := s.Get(ctx, "club", id)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, in.Paths, got.Paths)
		assert.Equal(t, int64(2), got.Version)

		extra := trail.Path{{Latitude: 1, Longitude: 2}}
		paths := append(got.Paths, extra)
		require.NoError(t, s.Update(ctx, "club", id, trail.Patch{Paths: paths}))
		got, err = s.Get(ctx, "club", id)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		require.Len(t, got.Paths, 2)
		assert.Equal(t, in.Paths[0], got.Paths[0])
		assert.Equal(t, extra, got.Paths[1])
		assert.Equal(t, int64(3), got.Version)
	})

	t.Run("update of missing record is not found", func(t *testing.T) {
		s := open(t)
		err := s.Update(ctx, "club", "missing", rename("X"))
		assert.ErrorIs(t, err, trail.ErrNotFound)
	})

	t.Run("conditional update rejects stale version", func(t *testing.T) {
		s := open(t)
		id, err := s.Create(ctx, "club", Walk("A", 0))
		require.NoError(t, err)

		name := "first"
		require.NoError(t, s.Update(ctx, "club", id, trail.Patch{Name: &name, IfVersion: 1}))

		stale := "second"
		err = s.Update(ctx, "club", id, trail.Patch{Name: &stale, IfVersion: 1})
		assert.ErrorIs(t, err, trail.ErrRevisionConflict)
		assert.ErrorIs(t, err, trail.ErrConflict)

		got, err := s.Get(ctx, "club", id)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("delete twice is not found", func(t *testing.T) {
		s := open(t)
		id, err := s.Create(ctx, "club", Walk("A", 0))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "club", id))
		err = s.Delete(ctx, "club", id)
		assert.True(t, errors.Is(err, trail.ErrNotFound), "second delete: %v", err)

		_, err = s.Get(ctx, "club", id)
		assert.ErrorIs(t, err, trail.ErrNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		s := open(t)
		id, err := s.Create(ctx, "club", Walk("A", 0))
		require.NoError(t, err)

		got, err := s.Get(ctx, "club", id)
		require.NoError(t, err)
		got.Name = "mutated"
		got.Paths[0][0].Latitude = 0

		again, err := s.Get(ctx, "club", id)
		require.NoError(t, err)
		assert.Equal(t, "A", again.Name)
		assert.Equal(t, 51.5007, again.Paths[0][0].Latitude)
	})
}

func rename(name string) trail.Patch {
	return trail.Patch{Name: &name}
}
