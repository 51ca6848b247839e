package docstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trail-go/internal/trail"
	"trail-go/internal/trail/storetest"
)

func TestFileSystemStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) trail.Store {
		s, err := NewFileSystemStore(filepath.Join(t.TempDir(), "store"), nil)
		require.NoError(t, err)
		return s
	})
}

func TestNewFileSystemStore(t *testing.T) {
	t.Run("creates root directory", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "a", "b")
		s, err := NewFileSystemStore(root, nil)
		require.NoError(t, err)
		assert.DirExists(t, root)
		assert.NoError(t, s.ValidateSetup())
	})

	t.Run("root is a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		_, err := NewFileSystemStore(path, nil)
		assert.Error(t, err)
	})
}

func TestFileSystemStore_Layout(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFileSystemStore(root, nil)
	require.NoError(t, err)

	id, err := s.Create(ctx, "../escape", storetest.Walk("A", 0))
	require.NoError(t, err)

	path := filepath.Join(root, scopeKey("../escape"), id+".json")
	assert.FileExists(t, path)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileSystemStore_RejectsPathIDs(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileSystemStore(t.TempDir(), nil)
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../x", `a\b`} {
		_, err := s.Get(ctx, "club", id)
		assert.ErrorIs(t, err, trail.ErrNotFound, "id %q", id)
		assert.ErrorIs(t, s.Delete(ctx, "club", id), trail.ErrNotFound, "id %q", id)
	}
}

func TestFileSystemStore_ListSkipsForeignFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewFileSystemStore(root, nil)
	require.NoError(t, err)

	_, err = s.Create(ctx, "club", storetest.Walk("A", 0))
	require.NoError(t, err)
	dir := filepath.Join(root, scopeKey("club"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("{"), 0644))

	got, err := s.List(ctx, "club")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
