// Package audit implements the append-only AuditEvent sink (spec.md §3).
// Every mutation to Skill, QuarantineRecord, or Source must be preceded by
// a durably-written AuditEvent (write-ahead, never rewritten). The Sink
// interface keeps this module's other components decoupled from the
// concrete durable store, matching how the teacher keeps
// core/rules.Matcher pluggable behind an interface.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity of an audit event, independent of scanner.Severity.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event is a single append-only audit record.
type Event struct {
	ID          string
	Timestamp   time.Time
	Actor       string
	Action      string
	SubjectType string
	SubjectID   string
	Before      any
	After       any
	Severity    Severity
	Metadata    map[string]string
}

// NewEvent constructs an Event with a fresh correlation id and the given
// fields, ready to pass to Sink.Append.
func NewEvent(actor, action, subjectType, subjectID string, severity Severity) Event {
	return Event{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Actor:       actor,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Severity:    severity,
		Metadata:    make(map[string]string),
	}
}

// Sink durably persists audit events. Append must complete (or the whole
// enclosing transaction must abort) before the triggering mutation commits
// — see internal/store's transaction scope, which calls Append inside the
// same scope as the mutation it guards.
type Sink interface {
	Append(ctx context.Context, ev Event) error
	// Query returns events for a subject, newest first, for operator review
	// (e.g. displaying the four audit events expected by spec.md scenario S3).
	Query(ctx context.Context, subjectType, subjectID string) ([]Event, error)
}
