package market

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"forgegate.dev/internal/artifact"
)

type fakeKey struct {
	id  string
	typ artifact.Type
}

type fakeEntry struct {
	content map[string]any
	meta    artifact.Metadata
}

// Fake is an in-memory Client for tests. FailWith, when set, is returned
// from every operation so callers can assert failure propagation.
type Fake struct {
	mu       sync.Mutex
	items    map[fakeKey]fakeEntry
	FailWith error
}

// NewFake returns an empty Fake marketplace.
func NewFake() *Fake {
	return &Fake{items: make(map[fakeKey]fakeEntry)}
}

func (f *Fake) Publish(_ context.Context, id string, typ artifact.Type, content map[string]any, meta artifact.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return f.FailWith
	}
	f.items[fakeKey{id: id, typ: typ}] = fakeEntry{content: content, meta: meta}
	return nil
}

func (f *Fake) Search(_ context.Context, query string, typ *artifact.Type) ([]artifact.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return nil, f.FailWith
	}
	var out []artifact.Metadata
	for k, e := range f.items {
		if typ != nil && k.typ != *typ {
			continue
		}
		if query != "" && !strings.Contains(e.meta.Name, query) {
			continue
		}
		out = append(out, e.meta)
	}
	return out, nil
}

func (f *Fake) Install(_ context.Context, id string, typ artifact.Type) (map[string]any, artifact.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return nil, artifact.Metadata{}, f.FailWith
	}
	e, ok := f.items[fakeKey{id: id, typ: typ}]
	if !ok {
		return nil, artifact.Metadata{}, fmt.Errorf("%w: %s/%s not found", ErrMarketplace, typ, id)
	}
	return e.content, e.meta, nil
}

func (f *Fake) Delete(_ context.Context, id string, typ artifact.Type) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		return f.FailWith
	}
	delete(f.items, fakeKey{id: id, typ: typ})
	return nil
}

// Len reports how many artifacts the fake holds.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
