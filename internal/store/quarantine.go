package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nox-hq/skillforge/internal/quarantine"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/skillerr"
)

// QuarantineStore adapts Store to quarantine.Store (and the wider
// install.QuarantineChecker surface), keeping that package's interface
// narrow and decoupled from the rest of the repository.
type QuarantineStore struct {
	s *Store
}

// Quarantine returns the QuarantineStore view of this repository.
func (s *Store) Quarantine() *QuarantineStore {
	return &QuarantineStore{s: s}
}

func (q *QuarantineStore) Get(ctx context.Context, id skill.ID, contentHash string) (*quarantine.Record, error) {
	row := q.s.db.QueryRowContext(ctx, `
		SELECT skill_id, content_hash, status, reviewers, approvals, required_approvals,
			reason, created_at, updated_at
		FROM quarantine_records WHERE skill_id = ? AND content_hash = ?`, string(id), contentHash)

	var (
		idStr, status, reviewers, approvalsJSON, reason, createdAt, updatedAt string
		rec                                                                   quarantine.Record
	)
	if err := row.Scan(&idStr, &rec.ContentHash, &status, &reviewers, &approvalsJSON,
		&rec.RequiredApprovals, &reason, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching quarantine record: %w", err)
	}
	rec.SkillID = skill.ID(idStr)
	rec.Status = quarantine.Status(status)
	rec.Reason = reason
	if reviewers != "" {
		rec.Reviewers = strings.Split(reviewers, ",")
	}
	rec.Approvals = make(map[string]bool)
	_ = json.Unmarshal([]byte(approvalsJSON), &rec.Approvals)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

func (q *QuarantineStore) Put(ctx context.Context, r *quarantine.Record) error {
	approvalsJSON, err := json.Marshal(r.Approvals)
	if err != nil {
		return fmt.Errorf("marshaling approvals: %w", err)
	}
	_, err = q.s.db.ExecContext(ctx, `
		INSERT INTO quarantine_records (skill_id, content_hash, status, reviewers, approvals,
			required_approvals, reason, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(skill_id, content_hash) DO UPDATE SET
			status=excluded.status, reviewers=excluded.reviewers, approvals=excluded.approvals,
			required_approvals=excluded.required_approvals, reason=excluded.reason,
			updated_at=excluded.updated_at`,
		string(r.SkillID), r.ContentHash, string(r.Status), strings.Join(r.Reviewers, ","),
		string(approvalsJSON), r.RequiredApprovals, r.Reason,
		r.CreatedAt.UTC().Format(time.RFC3339Nano), r.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting quarantine record: %w", err)
	}
	return nil
}

// LatestQuarantine returns the most recently updated non-terminal or
// terminal record for a skill regardless of content hash, used by search
// and install to decide visibility when the caller doesn't know the exact
// content hash in advance.
func (q *QuarantineStore) LatestQuarantine(ctx context.Context, id skill.ID) (*quarantine.Record, error) {
	row := q.s.db.QueryRowContext(ctx, `
		SELECT content_hash FROM quarantine_records
		WHERE skill_id = ? ORDER BY updated_at DESC LIMIT 1`, string(id))
	var contentHash string
	if err := row.Scan(&contentHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching latest quarantine record: %w", err)
	}
	rec, err := q.Get(ctx, id, contentHash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, skillerr.ErrNotFound
	}
	return rec, nil
}
