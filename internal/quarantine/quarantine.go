// Package quarantine implements the Quarantine Manager (C6): the state
// machine and multi-party approval workflow for flagged skills (spec.md
// §3, §4.6). The status-driven gating mirrors the teacher's core/vex
// package (a finding's disposition changes its downstream visibility
// without losing the original finding), generalized from a single status
// field to a full reviewer-approval state machine.
package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/nox-hq/skillforge/internal/audit"
	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/skillerr"
)

// Status is a QuarantineRecord's lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under-review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusExpired     Status = "expired"
)

// Terminal reports whether a status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// Record is a single (skill_id, content_hash) quarantine record.
type Record struct {
	SkillID          skill.ID
	ContentHash      string
	Status           Status
	Reviewers        []string // under-review assignee(s)
	Approvals        map[string]bool
	RequiredApprovals int
	Reason           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Visible reports whether this record permits the skill to stay visible to
// non-privileged search and installation (spec.md §4.6): only a terminal,
// approved record clears the skill; pending, under-review, rejected, and
// expired records all keep it hidden.
func (r *Record) Visible() bool {
	return r.Status == StatusApproved
}

// Store persists quarantine records. A real implementation backs onto
// internal/store within the same transaction scope as the Skill mutation
// that created the record.
type Store interface {
	Get(ctx context.Context, id skill.ID, contentHash string) (*Record, error)
	Put(ctx context.Context, r *Record) error
}

// SkillGate is the narrow slice of Skill mutation the Manager needs to
// flip visibility once a record reaches a terminal state: approval
// resolves the finding(s) that blocked the original scan verdict, so the
// skill's security_passed flag must follow the quarantine record rather
// than staying pinned to the original (failing) scan decision forever.
type SkillGate interface {
	SetSecurityPassed(ctx context.Context, id skill.ID, passed bool) error
}

// ReviewerRole controls whether a reviewer may approve or reject.
type ReviewerRole struct {
	CanApprove bool
	CanReject  bool
}

// Manager drives the quarantine state machine.
type Manager struct {
	store  Store
	skills SkillGate
	audit  audit.Sink
	cfg    config.QuarantineConfig
	nowFn  func() time.Time
}

// New constructs a Manager.
func New(store Store, skills SkillGate, sink audit.Sink, cfg config.QuarantineConfig) *Manager {
	return &Manager{store: store, skills: skills, audit: sink, cfg: cfg, nowFn: time.Now}
}

// RequiredApprovals computes the approval count a scan report demands:
// 2 if any Critical finding is present, else 1 (spec.md §3, Open Question
// fixed in SPEC_FULL.md §5).
func (m *Manager) RequiredApprovals(report scanner.ScanReport) int {
	for _, f := range report.Findings {
		if f.Severity == scanner.SeverityCritical && !f.Suppressed {
			return m.cfg.RequiredApprovalsCritical
		}
	}
	return m.cfg.RequiredApprovalsDefault
}

// Open creates a new pending QuarantineRecord when the Scanner returns
// review or block (spec.md §4.6 "Initial state").
func (m *Manager) Open(ctx context.Context, id skill.ID, report scanner.ScanReport, actor string) (*Record, error) {
	now := m.nowFn()
	r := &Record{
		SkillID:           id,
		ContentHash:       report.ContentHash,
		Status:            StatusPending,
		Approvals:         make(map[string]bool),
		RequiredApprovals: m.RequiredApprovals(report),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.writeAudit(ctx, actor, "quarantine.open", id, nil, r, audit.SeverityWarn); err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persisting quarantine record: %w", err)
	}
	return r, nil
}

// Assign transitions pending → under-review, recording the reviewer.
func (m *Manager) Assign(ctx context.Context, id skill.ID, contentHash, reviewer, actor string) (*Record, error) {
	r, err := m.mustGet(ctx, id, contentHash)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot assign from status %q", skillerr.ErrInvalidTransition, r.Status)
	}
	before := *r
	r.Status = StatusUnderReview
	r.Reviewers = append(r.Reviewers, reviewer)
	r.UpdatedAt = m.nowFn()
	if err := m.writeAudit(ctx, actor, "quarantine.assign", id, before, r, audit.SeverityInfo); err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persisting quarantine record: %w", err)
	}
	return r, nil
}

// Approve records a reviewer's approval. The record transitions to
// approved only once approvals.size >= required_approvals; a permission
// check is the caller's responsibility via role (spec.md §4.6).
func (m *Manager) Approve(ctx context.Context, id skill.ID, contentHash, reviewer string, role ReviewerRole) (*Record, error) {
	if !role.CanApprove {
		return nil, skillerr.ErrPermissionDenied
	}
	r, err := m.mustGet(ctx, id, contentHash)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusUnderReview {
		return nil, fmt.Errorf("%w: cannot approve from status %q", skillerr.ErrInvalidTransition, r.Status)
	}
	before := *r
	if r.Approvals == nil {
		r.Approvals = make(map[string]bool)
	}
	r.Approvals[reviewer] = true
	r.UpdatedAt = m.nowFn()

	transitioned := false
	if len(r.Approvals) >= r.RequiredApprovals {
		r.Status = StatusApproved
		transitioned = true
	}

	action := "quarantine.approve"
	if transitioned {
		action = "quarantine.approved"
	}
	if err := m.writeAudit(ctx, reviewer, action, id, before, r, audit.SeverityInfo); err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persisting quarantine record: %w", err)
	}

	if transitioned && m.skills != nil {
		if err := m.skills.SetSecurityPassed(ctx, id, true); err != nil {
			return nil, fmt.Errorf("restoring security_passed after approval: %w", err)
		}
	}

	return r, nil
}

// Reject terminates the record as rejected. Exactly one reviewer with
// reject permission is required.
func (m *Manager) Reject(ctx context.Context, id skill.ID, contentHash, reviewer, reason string, role ReviewerRole) (*Record, error) {
	if !role.CanReject {
		return nil, skillerr.ErrPermissionDenied
	}
	r, err := m.mustGet(ctx, id, contentHash)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusUnderReview {
		return nil, fmt.Errorf("%w: cannot reject from status %q", skillerr.ErrInvalidTransition, r.Status)
	}
	before := *r
	r.Status = StatusRejected
	r.Reason = reason
	r.UpdatedAt = m.nowFn()
	if err := m.writeAudit(ctx, reviewer, "quarantine.reject", id, before, r, audit.SeverityWarn); err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persisting quarantine record: %w", err)
	}
	return r, nil
}

// Expire is invoked by the background reaper for records that have stayed
// in pending or under-review past the TTL.
func (m *Manager) Expire(ctx context.Context, id skill.ID, contentHash string) (*Record, error) {
	r, err := m.mustGet(ctx, id, contentHash)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return r, nil
	}
	if m.nowFn().Sub(r.UpdatedAt) < m.cfg.TTL {
		return r, nil
	}
	before := *r
	r.Status = StatusExpired
	r.UpdatedAt = m.nowFn()
	if err := m.writeAudit(ctx, "system:reaper", "quarantine.expire", id, before, r, audit.SeverityWarn); err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, r); err != nil {
		return nil, fmt.Errorf("persisting quarantine record: %w", err)
	}
	return r, nil
}

// Get returns the quarantine record for (id, contentHash), or nil if none
// exists yet.
func (m *Manager) Get(ctx context.Context, id skill.ID, contentHash string) (*Record, error) {
	return m.store.Get(ctx, id, contentHash)
}

func (m *Manager) mustGet(ctx context.Context, id skill.ID, contentHash string) (*Record, error) {
	r, err := m.store.Get(ctx, id, contentHash)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, skillerr.ErrNotFound
	}
	return r, nil
}

func (m *Manager) writeAudit(ctx context.Context, actor, action string, id skill.ID, before, after any, sev audit.Severity) error {
	ev := audit.NewEvent(actor, action, "quarantine_record", string(id), sev)
	ev.Before = before
	ev.After = after
	return m.audit.Append(ctx, ev)
}
