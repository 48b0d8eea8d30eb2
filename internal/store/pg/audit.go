package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/ids"
)

// AuditSink appends security events to the audit_events table. The trail is
// append-only; nothing in the gateway reads it back.
type AuditSink struct {
	db *sql.DB
	// Next, when set, receives every event after the insert. Used to chain
	// the log sink so events still reach stdout and SSE subscribers.
	Next audit.Sink
}

var _ audit.Sink = (*AuditSink)(nil)

func NewAuditSink(db *sql.DB, next audit.Sink) *AuditSink {
	return &AuditSink{db: db, Next: next}
}

func (s *AuditSink) Emit(ctx context.Context, eventType string, fields map[string]any) error {
	if eventType == "" {
		return errors.New("pg: audit event type is required")
	}
	doc, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode audit fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_events (id, event_type, fields, created_at)
		values ($1, $2, $3, $4)
	`, ids.New(), eventType, doc, time.Now().UTC())
	if err != nil {
		return err
	}
	if s.Next != nil {
		return s.Next.Emit(ctx, eventType, fields)
	}
	return nil
}
