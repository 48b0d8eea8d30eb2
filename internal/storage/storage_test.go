package storage

import (
	"context"
	"errors"
	"testing"

	"forgegate.dev/internal/artifact"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	meta := artifact.Metadata{Name: "demo", Version: "1.0.0"}

	if err := m.Store(ctx, "a1", artifact.TypeAgent, map[string]any{"model": "sonnet"}, meta); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := m.Store(ctx, "a1", artifact.TypeAgent, nil, meta); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate must conflict, got %v", err)
	}
	// Same id under a different type is a distinct artifact
	if err := m.Store(ctx, "a1", artifact.TypeTool, map[string]any{"code": "x"}, meta); err != nil {
		t.Fatalf("Store under other type: %v", err)
	}

	content, got, err := m.Retrieve(ctx, "a1", artifact.TypeAgent)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if content["model"] != "sonnet" || got.Name != "demo" {
		t.Fatalf("unexpected record: %v %+v", content, got)
	}

	typ := artifact.TypeAgent
	list, err := m.List(ctx, &typ)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("filtered list must hold one entry, got %d", len(list))
	}
	all, err := m.List(ctx, nil)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered list must hold two entries, got %d", len(all))
	}

	if err := m.Delete(ctx, "a1", artifact.TypeAgent); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, "a1", artifact.TypeAgent); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleting twice must not-found, got %v", err)
	}
	if _, _, err := m.Retrieve(ctx, "a1", artifact.TypeAgent); !errors.Is(err, ErrNotFound) {
		t.Fatalf("retrieving deleted must not-found, got %v", err)
	}
}
