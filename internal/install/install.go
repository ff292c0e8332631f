// Package install implements the Installation Gate (C11): the
// authorize_install pipeline that re-validates a skill immediately before
// granting install, rather than trusting a potentially stale catalog
// entry. Re-running the scanner and comparing verdicts before acting is
// the same "never trust a cached decision for a security-relevant action"
// discipline the teacher's registry/trust.Verify applies to signature
// checks before extracting a plugin artifact.
package install

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nox-hq/skillforge/internal/audit"
	"github.com/nox-hq/skillforge/internal/bundle"
	"github.com/nox-hq/skillforge/internal/quarantine"
	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/skillerr"
)

// TrustThreshold is the minimum quality score a trust tier requires to
// pass install-time strictness checks (spec.md §4.9).
var TrustThreshold = map[skill.TrustTier]float64{
	skill.TrustVerified:     0,
	skill.TrustCurated:      0,
	skill.TrustCommunity:    40,
	skill.TrustExperimental: 60,
	skill.TrustUnknown:      101, // unreachable: unknown tier never passes
	skill.TrustLocal:        0,
}

// manifestVersion is the wire version of InstallManifest (spec.md §6).
const manifestVersion = 1

// Manifest is emitted on a successful authorization. Field names and
// shapes mirror spec.md §6's serialized InstallManifest exactly; the
// client uses ContentHash as its integrity check on fetched bytes.
type Manifest struct {
	SkillID         skill.ID        `json:"id"`
	ContentHash     string          `json:"content_hash"`
	TrustTier       skill.TrustTier `json:"trust_tier"`
	ScanDigest      string          `json:"scan_digest"`
	ManifestVersion int             `json:"manifest_version"`
	IssuedAt        time.Time       `json:"issued_at"`
	AuthorizedFor   string          `json:"-"`
}

// SkillStore is the subset of internal/store.Store the gate needs.
type SkillStore interface {
	GetSkill(ctx context.Context, id skill.ID) (*skill.Skill, error)
	// SetSecurityPassed marks a skill for re-review when an install-time
	// re-scan's verdict no longer matches the one its record was last
	// committed with.
	SetSecurityPassed(ctx context.Context, id skill.ID, passed bool) error
}

// QuarantineChecker is the subset of quarantine functionality the gate
// needs: the latest record for a skill, regardless of content hash.
type QuarantineChecker interface {
	LatestQuarantine(ctx context.Context, id skill.ID) (*quarantine.Record, error)
}

// Gate authorizes or denies installation of a skill.
type Gate struct {
	store      SkillStore
	quarantine QuarantineChecker
	scanner    *scanner.Scanner
	audit      audit.Sink
}

// New constructs a Gate.
func New(store SkillStore, qc QuarantineChecker, sc *scanner.Scanner, sink audit.Sink) *Gate {
	return &Gate{store: store, quarantine: qc, scanner: sc, audit: sink}
}

// Authorize runs the full authorize_install pipeline for (id, caller): reload
// the stored skill, re-check quarantine, verify the stored body still
// hashes to the stored content hash, re-scan the stored body and compare the
// fresh verdict against the one the record was last committed with, and
// enforce the tier-specific quality threshold. Any mismatch fails closed.
func (g *Gate) Authorize(ctx context.Context, id skill.ID, callerSubject string) (*Manifest, error) {
	stored, err := g.store.GetSkill(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec, err := g.quarantine.LatestQuarantine(ctx, id); err == nil && rec != nil {
		if !rec.Visible() {
			g.deny(ctx, id, callerSubject, "quarantined")
			return nil, skillerr.ErrQuarantined
		}
	} else if err != nil && err != skillerr.ErrNotFound {
		return nil, fmt.Errorf("checking quarantine state: %w", err)
	}

	if hashStoredBody(stored) != stored.ContentHash {
		g.deny(ctx, id, callerSubject, "stored content hash no longer matches stored body")
		_ = g.store.SetSecurityPassed(ctx, id, false)
		return nil, skillerr.ErrIntegrityMismatch
	}

	report := g.scanner.Scan(id, stored.ContentHash, stored.RawBody)
	if string(report.Decision) != stored.LastScanDecision {
		g.deny(ctx, id, callerSubject, "re-scan verdict no longer matches the stored verdict")
		_ = g.store.SetSecurityPassed(ctx, id, false)
		return nil, skillerr.ErrIntegrityMismatch
	}
	if report.Decision == scanner.DecisionBlock {
		g.deny(ctx, id, callerSubject, "re-scan blocked")
		findings := make([]string, 0, len(report.Findings))
		for _, f := range report.Findings {
			if !f.Suppressed {
				findings = append(findings, f.RuleID)
			}
		}
		return nil, &skillerr.ScanBlocked{Findings: findings}
	}

	threshold, ok := TrustThreshold[stored.TrustTier]
	if !ok || stored.QualityScore < threshold {
		g.deny(ctx, id, callerSubject, "below trust-tier quality threshold")
		return nil, skillerr.ErrPolicyDenied
	}

	manifest := &Manifest{
		SkillID:         id,
		ContentHash:     stored.ContentHash,
		TrustTier:       stored.TrustTier,
		ScanDigest:      report.Digest(),
		ManifestVersion: manifestVersion,
		IssuedAt:        time.Now().UTC(),
		AuthorizedFor:   callerSubject,
	}

	ev := audit.NewEvent(callerSubject, "install.authorized", "skill", string(id), audit.SeverityInfo)
	ev.After = manifest
	_ = g.audit.Append(ctx, ev)

	return manifest, nil
}

// hashStoredBody recomputes the content hash of a stored skill's own body
// and metadata, independent of whatever content_hash the record claims.
// Authorize compares the two to catch store-side corruption or tampering
// (Testable Property #6): a record whose content_hash no longer matches its
// own stored_body must fail closed rather than install stale bytes.
func hashStoredBody(stored *skill.Skill) string {
	canonical := bundle.Canonicalize(map[string]string(stored.ParsedMetadata), stored.RawBody)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

func (g *Gate) deny(ctx context.Context, id skill.ID, subject, reason string) {
	ev := audit.NewEvent(subject, "install.denied", "skill", string(id), audit.SeverityWarn)
	ev.Metadata = map[string]string{"reason": reason}
	_ = g.audit.Append(ctx, ev)
}
