package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"forgegate.dev/internal/obs"
)

func TestLogSinkEmit(t *testing.T) {
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = WithActor(ctx, "user-42")

	sink := NewLogSink(nil)
	if err := sink.Emit(ctx, "artifact.validated", map[string]any{"artifact_id": "a1"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}
	var evt Event
	if err := json.Unmarshal([]byte(line), &evt); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if evt.Type != "artifact.validated" {
		t.Fatalf("unexpected event type: %s", evt.Type)
	}
	if evt.RequestID != "req-123" {
		t.Fatalf("unexpected request id: %s", evt.RequestID)
	}
	if evt.Actor != "user-42" {
		t.Fatalf("unexpected actor: %s", evt.Actor)
	}
	if evt.Fields["artifact_id"] != "a1" {
		t.Fatalf("fields missing or incorrect: %v", evt.Fields)
	}
	if evt.ID == "" || evt.Timestamp.IsZero() {
		t.Fatal("event must carry id and timestamp")
	}
}

func TestEmitRequiresType(t *testing.T) {
	sink := NewLogSink(nil)
	if err := sink.Emit(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event type")
	}
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := hub.Subscribe(ctx)
	b := hub.Subscribe(ctx)

	sink := NewLogSink(hub)
	logger := obs.Logger()
	original := logger.Writer()
	logger.SetOutput(&bytes.Buffer{})
	defer logger.SetOutput(original)

	if err := sink.Emit(context.Background(), "access.denied", map[string]any{"user_id": "u1"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case evt := <-ch:
			if evt.Type != "access.denied" {
				t.Fatalf("subscriber %s got unexpected event: %+v", name, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive the event", name)
		}
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	_ = rec.Emit(context.Background(), "token.issued", map[string]any{"user_id": "u1"})
	_ = rec.Emit(context.Background(), "token.revoked", nil)

	if len(rec.Events()) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rec.Events()))
	}
	if got := rec.ByType("token.issued"); len(got) != 1 {
		t.Fatalf("ByType returned %d events", len(got))
	}
}
