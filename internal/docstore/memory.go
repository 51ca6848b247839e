package docstore

import (
	"context"
	"sync"

	"trail-go/internal/trail"
)

// MemoryStore is an in-memory implementation of the trail.Store interface.
// Documents are held encoded, so callers never share memory with the store.
// This implementation is safe for concurrent use.
type MemoryStore struct {
	ids  trail.IDGenerator
	mu   sync.RWMutex
	docs map[string]map[string][]byte // scope -> id -> document
}

// NewMemoryStore creates an empty in-memory store. A nil ids uses UUIDs.
func NewMemoryStore(ids trail.IDGenerator) *MemoryStore {
	if ids == nil {
		ids = trail.UUIDGenerator{}
	}
	return &MemoryStore{
		ids:  ids,
		docs: make(map[string]map[string][]byte),
	}
}

// Create stores a new document in scope.
func (m *MemoryStore) Create(ctx context.Context, scope string, rec *trail.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := m.ids.New()
	data, err := encodeRecord(newDocument(scope, id, rec))
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.docs[scope]
	if !ok {
		docs = make(map[string][]byte)
		m.docs[scope] = docs
	}
	docs[id] = data
	return id, nil
}

// Get returns the document with the given ID in scope.
func (m *MemoryStore) Get(ctx context.Context, scope, id string) (*trail.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.docs[scope][id]
	m.mu.RUnlock()
	if !ok {
		return nil, trail.NotFoundError(id)
	}
	return decodeRecord(data)
}

// List returns every document in scope, oldest first.
func (m *MemoryStore) List(ctx context.Context, scope string) ([]*trail.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*trail.Record, 0, len(m.docs[scope]))
	for _, data := range m.docs[scope] {
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortByCreation(out)
	return out, nil
}

// Update applies patch to the document atomically.
func (m *MemoryStore) Update(ctx context.Context, scope, id string, patch trail.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.docs[scope][id]
	if !ok {
		return trail.NotFoundError(id)
	}
	current, err := decodeRecord(data)
	if err != nil {
		return err
	}
	next, err := trail.ApplyPatch(current, patch)
	if err != nil {
		return err
	}
	encoded, err := encodeRecord(next)
	if err != nil {
		return err
	}
	m.docs[scope][id] = encoded
	return nil
}

// Delete removes the document. A missing document returns ErrNotFound.
func (m *MemoryStore) Delete(ctx context.Context, scope, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[scope][id]; !ok {
		return trail.NotFoundError(id)
	}
	delete(m.docs[scope], id)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// Compile-time check that MemoryStore implements trail.Store interface
var _ trail.Store = (*MemoryStore)(nil)
