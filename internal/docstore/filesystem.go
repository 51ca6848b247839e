package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"trail-go/internal/trail"
)

const docExt = ".json"

// FileSystemStore is a filesystem-based implementation of the trail.Store
// interface. Each record is one JSON document:
//
//	<root>/
//	  <scope key>/
//	    <id>.json
//
// Writes go through a temp file and rename so a document is never left
// half written. Updates are serialized within the process.
type FileSystemStore struct {
	root string
	ids  trail.IDGenerator
	mu   sync.Mutex
}

// NewFileSystemStore creates a store rooted at the given path, creating the
// directory if needed.
func NewFileSystemStore(root string, ids trail.IDGenerator) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	if ids == nil {
		ids = trail.UUIDGenerator{}
	}
	return &FileSystemStore{root: root, ids: ids}, nil
}

func (s *FileSystemStore) scopeDir(scope string) string {
	return filepath.Join(s.root, scopeKey(scope))
}

func (s *FileSystemStore) docPath(scope, id string) string {
	return filepath.Join(s.scopeDir(scope), id+docExt)
}

// Create writes a new document in scope.
func (s *FileSystemStore) Create(ctx context.Context, scope string, rec *trail.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := s.ids.New()
	data, err := encodeRecord(newDocument(scope, id, rec))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.scopeDir(scope), 0755); err != nil {
		return "", fmt.Errorf("failed to create scope directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFile(s.docPath(scope, id), data); err != nil {
		return "", err
	}
	return id, nil
}

// Get reads the document with the given ID.
func (s *FileSystemStore) Get(ctx context.Context, scope, id string) (*trail.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, trail.NotFoundError(id)
	}
	return s.read(scope, id)
}

func (s *FileSystemStore) read(scope, id string) (*trail.Record, error) {
	data, err := os.ReadFile(s.docPath(scope, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, trail.NotFoundError(id)
		}
		return nil, fmt.Errorf("failed to read trail %s: %w", id, err)
	}
	return decodeRecord(data)
}

// List reads every document in scope, oldest first.
func (s *FileSystemStore) List(ctx context.Context, scope string) ([]*trail.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.scopeDir(scope))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*trail.Record{}, nil
		}
		return nil, fmt.Errorf("failed to list scope: %w", err)
	}

	out := make([]*trail.Record, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, docExt) {
			continue
		}
		rec, err := s.read(scope, strings.TrimSuffix(name, docExt))
		if err != nil {
			if errors.Is(err, trail.ErrNotFound) {
				continue // deleted while listing
			}
			return nil, err
		}
		out = append(out, rec)
	}
	sortByCreation(out)
	return out, nil
}

// Update applies patch to the document.
func (s *FileSystemStore) Update(ctx context.Context, scope, id string, patch trail.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return trail.NotFoundError(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(scope, id)
	if err != nil {
		return err
	}
	next, err := trail.ApplyPatch(current, patch)
	if err != nil {
		return err
	}
	data, err := encodeRecord(next)
	if err != nil {
		return err
	}
	return writeFile(s.docPath(scope, id), data)
}

// Delete removes the document file.
func (s *FileSystemStore) Delete(ctx context.Context, scope, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return trail.NotFoundError(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.docPath(scope, id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return trail.NotFoundError(id)
		}
		return fmt.Errorf("failed to delete trail %s: %w", id, err)
	}
	return nil
}

// ValidateSetup verifies that the store root is an accessible directory.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}
	return nil
}

// Close is a no-op for the filesystem store.
func (s *FileSystemStore) Close() error {
	return nil
}

// writeFile writes data to destPath using atomic write (temp file + rename).
func writeFile(destPath string, data []byte) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemStore implements trail.Store interface
var _ trail.Store = (*FileSystemStore)(nil)
