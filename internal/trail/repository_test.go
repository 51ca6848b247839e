package trail_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"trail-go/internal/testutil"
	"trail-go/internal/trail"
)

func newRepo(t *testing.T, unique bool) (*trail.Repository, trail.Store) {
	t.Helper()
	store := testutil.NewTestStore(t)
	repo := trail.NewRepository(store, "club", trail.RepositoryOptions{
		UniqueNames: unique,
		Clock:       testutil.NewSteppingClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC), time.Minute),
	})
	return repo, store
}

func mustCreate(t *testing.T, repo *trail.Repository, name string, paths ...trail.Path) string {
	t.Helper()
	if len(paths) == 0 {
		paths = []trail.Path{{westminster, bridge}}
	}
	id, err := repo.Create(context.Background(), &trail.Record{Name: name, Paths: paths})
	if err != nil {
		t.Fatalf("Create(%q) error = %v", name, err)
	}
	return id
}

func TestRepository_CreateListRoundTrip(t *testing.T) {
	repo, _ := newRepo(t, false)
	ctx := context.Background()

	in := &trail.Record{Name: "  Thames walk ", Paths: []trail.Path{{westminster, bridge}}}
	id, err := repo.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if in.ID != id || in.Scope != "club" || in.Version != 1 || in.Timestamp.IsZero() {
		t.Errorf("Create() did not fill the record: %+v", in)
	}

	recs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != id || got.Name != "Thames walk" || !got.Timestamp.Equal(in.Timestamp) {
		t.Errorf("List()[0] = %+v", got)
	}
	if len(got.Paths) != 1 || len(got.Paths[0]) != 2 || got.Paths[0][0] != westminster || got.Paths[0][1] != bridge {
		t.Errorf("List()[0].Paths = %v", got.Paths)
	}
}

func TestRepository_CreateTruncatesTimestamp(t *testing.T) {
	store := testutil.NewTestStore(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 123456789, time.UTC)
	repo := trail.NewRepository(store, "club", trail.RepositoryOptions{Clock: testutil.NewStubClock(now)})
	ctx := context.Background()

	in := &trail.Record{Name: "Thames walk", Paths: []trail.Path{{westminster}}}
	id, err := repo.Create(ctx, in)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	want := time.Date(2024, 5, 1, 9, 0, 0, 123456000, time.UTC)
	if !in.Timestamp.Equal(want) {
		t.Errorf("Create() timestamp = %v, want %v", in.Timestamp, want)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Timestamp.Equal(in.Timestamp) {
		t.Errorf("Get() timestamp = %v, want %v", got.Timestamp, in.Timestamp)
	}
}

func TestRepository_ListEmptyScope(t *testing.T) {
	repo, _ := newRepo(t, false)
	recs, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("List() = %v, want empty slice", recs)
	}
}

func TestRepository_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		rec  *trail.Record
	}{
		{name: "blank name", rec: &trail.Record{Name: " \t", Paths: []trail.Path{{westminster}}}},
		{name: "no paths", rec: &trail.Record{Name: "Walk"}},
		{name: "empty path", rec: &trail.Record{Name: "Walk", Paths: []trail.Path{{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &testutil.FlakyStore{Store: testutil.NewTestStore(t), CreateErr: errors.New("store must not be called")}
			repo := trail.NewRepository(store, "club", trail.RepositoryOptions{})
			_, err := repo.Create(context.Background(), tt.rec)
			if !errors.Is(err, trail.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestRepository_UniqueNamePolicy(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		repo, _ := newRepo(t, true)
		mustCreate(t, repo, "Thames walk")

		_, err := repo.Create(context.Background(), &trail.Record{Name: "thames WALK", Paths: []trail.Path{{eye}}})
		if !errors.Is(err, trail.ErrConflict) {
			t.Errorf("Create() error = %v, want ErrConflict", err)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		repo, _ := newRepo(t, false)
		mustCreate(t, repo, "Thames walk")
		mustCreate(t, repo, "Thames walk")

		recs, _ := repo.List(context.Background())
		if len(recs) != 2 {
			t.Errorf("len(List()) = %d, want 2", len(recs))
		}
	})
}

func TestRepository_Update(t *testing.T) {
	repo, _ := newRepo(t, false)
	ctx := context.Background()
	id := mustCreate(t, repo, "Old")

	name := " New "
	if err := repo.Update(ctx, id, trail.Patch{Name: &name}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "New" || len(got.Paths) != 1 {
		t.Errorf("Get() = %+v", got)
	}

	err = repo.Update(ctx, "missing", trail.Patch{Name: &name})
	if !errors.Is(err, trail.ErrNotFound) || !errors.Is(err, trail.ErrPersistence) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound wrapped as persistence", err)
	}

	if err := repo.Update(ctx, id, trail.Patch{}); !errors.Is(err, trail.ErrValidation) {
		t.Errorf("Update(empty patch) error = %v, want ErrValidation", err)
	}
}

func TestRepository_DeleteTwice(t *testing.T) {
	repo, _ := newRepo(t, false)
	ctx := context.Background()
	id := mustCreate(t, repo, "Walk")

	if err := repo.Delete(ctx, id); err != nil {
		t.Fatalf("first Delete() error = %v", err)
	}
	err := repo.Delete(ctx, id)
	if !errors.Is(err, trail.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestRepository_AppendPath(t *testing.T) {
	repo, _ := newRepo(t, false)
	ctx := context.Background()
	p1 := trail.Path{westminster, bridge}
	id := mustCreate(t, repo, "Walk", p1)

	p2 := trail.Path{bridge, eye}
	updated, err := repo.AppendPath(ctx, id, p2)
	if err != nil {
		t.Fatalf("AppendPath() error = %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}

	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Paths) != 2 {
		t.Fatalf("len(Paths) = %d, want 2", len(got.Paths))
	}
	if got.Paths[0][0] != p1[0] || got.Paths[0][1] != p1[1] {
		t.Errorf("first path changed: %v", got.Paths[0])
	}
	if got.Paths[1][0] != p2[0] || got.Paths[1][1] != p2[1] {
		t.Errorf("second path = %v, want %v", got.Paths[1], p2)
	}

	if _, err := repo.AppendPath(ctx, id, nil); !errors.Is(err, trail.ErrValidation) {
		t.Errorf("AppendPath(empty) error = %v, want ErrValidation", err)
	}
	if _, err := repo.AppendPath(ctx, "missing", p2); !errors.Is(err, trail.ErrNotFound) {
		t.Errorf("AppendPath(missing) error = %v, want ErrNotFound", err)
	}
}

func TestRepository_PersistenceErrorsSurface(t *testing.T) {
	boom := errors.New("disk full")
	store := &testutil.FlakyStore{Store: testutil.NewTestStore(t), CreateErr: boom, ListErr: boom}
	repo := trail.NewRepository(store, "club", trail.RepositoryOptions{})

	_, err := repo.Create(context.Background(), &trail.Record{Name: "Walk", Paths: []trail.Path{{westminster}}})
	var pe *trail.PersistenceError
	if !errors.As(err, &pe) || !errors.Is(err, boom) {
		t.Errorf("Create() error = %v, want PersistenceError wrapping the store error", err)
	}
	if _, err := repo.List(context.Background()); !errors.Is(err, trail.ErrPersistence) {
		t.Errorf("List() error = %v, want ErrPersistence", err)
	}
}

func TestMerger_Append(t *testing.T) {
	repo, store := newRepo(t, false)
	ctx := context.Background()
	id := mustCreate(t, repo, "Walk")
	selected, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	merger := trail.NewMerger(repo, nil)
	updated, err := merger.Append(ctx, selected, trail.Path{eye})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(updated.Paths) != 2 || len(selected.Paths) != 1 {
		t.Errorf("Append() paths = %d, selected paths = %d", len(updated.Paths), len(selected.Paths))
	}

	// Appending again from the stale copy must not drop the first append.
	_, err = merger.Append(ctx, selected, trail.Path{bridge})
	if !errors.Is(err, trail.ErrRevisionConflict) {
		t.Fatalf("stale Append() error = %v, want ErrRevisionConflict", err)
	}
	stored, _ := store.Get(ctx, "club", id)
	if len(stored.Paths) != 2 {
		t.Errorf("stored paths = %d, want 2", len(stored.Paths))
	}

	if _, err := merger.Append(ctx, updated, nil); !errors.Is(err, trail.ErrNothingToSave) {
		t.Errorf("Append(empty) error = %v, want ErrNothingToSave", err)
	}
	if _, err := merger.Append(ctx, nil, trail.Path{eye}); !errors.Is(err, trail.ErrValidation) {
		t.Errorf("Append(nil) error = %v, want ErrValidation", err)
	}
}
