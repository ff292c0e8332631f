package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nox-hq/skillforge/internal/audit"
)

// Append implements audit.Sink directly on Store so every mutating method
// above can share the same connection pool and transaction scope as the
// audit trail it writes ahead of.
func (s *Store) Append(ctx context.Context, ev audit.Event) error {
	beforeJSON, err := json.Marshal(ev.Before)
	if err != nil {
		return fmt.Errorf("marshaling audit before: %w", err)
	}
	afterJSON, err := json.Marshal(ev.After)
	if err != nil {
		return fmt.Errorf("marshaling audit after: %w", err)
	}
	metaJSON, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling audit metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, timestamp, actor, action, subject_type, subject_id,
			before_json, after_json, severity, metadata)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Timestamp.UTC().Format(time.RFC3339Nano), ev.Actor, ev.Action,
		ev.SubjectType, ev.SubjectID, string(beforeJSON), string(afterJSON), string(ev.Severity), string(metaJSON))
	if err != nil {
		return fmt.Errorf("appending audit event: %w", err)
	}
	return nil
}

// Query returns a subject's audit trail, newest first.
func (s *Store) Query(ctx context.Context, subjectType, subjectID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, actor, action, subject_type, subject_id, before_json, after_json,
			severity, metadata
		FROM audit_events WHERE subject_type = ? AND subject_id = ? ORDER BY timestamp DESC`,
		subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev                             audit.Event
			ts, sev, beforeJSON, afterJSON string
			metaJSON                       string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.Actor, &ev.Action, &ev.SubjectType, &ev.SubjectID,
			&beforeJSON, &afterJSON, &sev, &metaJSON); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		ev.Severity = audit.Severity(sev)
		_ = json.Unmarshal([]byte(beforeJSON), &ev.Before)
		_ = json.Unmarshal([]byte(afterJSON), &ev.After)
		ev.Metadata = make(map[string]string)
		_ = json.Unmarshal([]byte(metaJSON), &ev.Metadata)
		out = append(out, ev)
	}
	return out, rows.Err()
}
