// Package audit produces the append-only trail of security decisions. Every
// gateway operation emits exactly one event describing the decision and its
// outcome; the gateway only writes events, it never reads them back.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"forgegate.dev/internal/ids"
	"forgegate.dev/internal/obs"
)

// Event is the structured record written for every security decision.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Fields    map[string]any `json:"fields"`
}

// Sink accepts audit events. Implementations must be safe for concurrent
// use.
type Sink interface {
	Emit(ctx context.Context, eventType string, fields map[string]any) error
}

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor"
)

// WithRequestID attaches the request identifier used to correlate audit
// events with HTTP requests.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting user id to the context.
func WithActor(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey, userID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(actorKey).(string); ok {
		return v
	}
	return ""
}

// newEvent builds an Event enriched from the context.
func newEvent(ctx context.Context, eventType string, fields map[string]any) Event {
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return Event{
		ID:        ids.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RequestID: requestIDFromContext(ctx),
		Actor:     actorFromContext(ctx),
		Fields:    copied,
	}
}

// LogSink writes events as JSON lines through the shared logger and,
// when configured, forwards them to a Hub for live subscribers.
type LogSink struct {
	hub *Hub
}

// NewLogSink returns a sink writing to the shared logger. hub may be nil.
func NewLogSink(hub *Hub) *LogSink {
	return &LogSink{hub: hub}
}

// Emit writes one audit line. The event type is required.
func (s *LogSink) Emit(ctx context.Context, eventType string, fields map[string]any) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return errors.New("audit: event type is required")
	}
	evt := newEvent(ctx, eventType, fields)
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	if s.hub != nil {
		s.hub.Publish(evt)
	}
	return nil
}
