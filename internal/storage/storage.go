// Package storage defines the artifact storage collaborator contract the
// gateway relies on. The security subsystem never touches the backend's
// on-disk layout; it only needs these operations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"forgegate.dev/internal/artifact"
)

var (
	ErrNotFound = errors.New("storage: artifact not found")
	ErrConflict = errors.New("storage: artifact already exists")
)

// Store is the narrow contract against the external artifact store.
type Store interface {
	Store(ctx context.Context, id string, typ artifact.Type, content map[string]any, meta artifact.Metadata) error
	Retrieve(ctx context.Context, id string, typ artifact.Type) (map[string]any, artifact.Metadata, error)
	Delete(ctx context.Context, id string, typ artifact.Type) error
	// List returns metadata for stored artifacts, optionally filtered by
	// type.
	List(ctx context.Context, typ *artifact.Type) ([]artifact.Metadata, error)
}

type key struct {
	id  string
	typ artifact.Type
}

type record struct {
	content  map[string]any
	meta     artifact.Metadata
	storedAt time.Time
}

// Memory is the in-memory Store used by tests and single-process setups.
type Memory struct {
	mu    sync.RWMutex
	items map[key]record
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[key]record)}
}

func (m *Memory) Store(_ context.Context, id string, typ artifact.Type, content map[string]any, meta artifact.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{id: id, typ: typ}
	if _, ok := m.items[k]; ok {
		return fmt.Errorf("%w: %s/%s", ErrConflict, typ, id)
	}
	m.items[k] = record{content: content, meta: meta, storedAt: time.Now().UTC()}
	return nil
}

func (m *Memory) Retrieve(_ context.Context, id string, typ artifact.Type) (map[string]any, artifact.Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.items[key{id: id, typ: typ}]
	if !ok {
		return nil, artifact.Metadata{}, fmt.Errorf("%w: %s/%s", ErrNotFound, typ, id)
	}
	return rec.content, rec.meta, nil
}

func (m *Memory) Delete(_ context.Context, id string, typ artifact.Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{id: id, typ: typ}
	if _, ok := m.items[k]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, typ, id)
	}
	delete(m.items, k)
	return nil
}

func (m *Memory) List(_ context.Context, typ *artifact.Type) ([]artifact.Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []artifact.Metadata
	for k, rec := range m.items {
		if typ != nil && k.typ != *typ {
			continue
		}
		out = append(out, rec.meta)
	}
	return out, nil
}

// Len reports the number of stored artifacts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
