package audit

import (
	"context"
	"strings"
	"sync"
)

// Recorder is an in-memory Sink used by tests to assert on emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records the event.
func (r *Recorder) Emit(ctx context.Context, eventType string, fields map[string]any) error {
	evt := newEvent(ctx, eventType, fields)
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType returns recorded events whose type matches eventType.
func (r *Recorder) ByType(eventType string) []Event {
	var out []Event
	for _, evt := range r.Events() {
		if strings.EqualFold(evt.Type, eventType) {
			out = append(out, evt)
		}
	}
	return out
}
