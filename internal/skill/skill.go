// Package skill defines the canonical data model shared across every
// component of the catalog engine: Skill, SkillVersion, Source, and
// Category, per spec.md §3. Scan findings are defined in internal/scanner
// and quarantine records in internal/quarantine.
package skill

import (
	"fmt"
	"regexp"
	"time"
)

// idPattern validates the lowercase [a-z][a-z0-9-]* shape required of both
// the author and name halves of a Skill ID.
var idPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// TrustTier classifies the visibility and install strictness band a Skill
// is placed in. Assignment is a pure function of Source provenance and
// Scanner verdict (see internal/trust).
type TrustTier string

// Trust tier values, ordered loosely from most to least permissive at
// install time (see internal/install for the strictness mapping).
const (
	TrustVerified     TrustTier = "verified"
	TrustCurated      TrustTier = "curated"
	TrustCommunity    TrustTier = "community"
	TrustExperimental TrustTier = "experimental"
	TrustUnknown      TrustTier = "unknown"
	TrustLocal        TrustTier = "local"
)

// Category is a member of the closed category enum. Membership may only
// grow through an explicit migration event (see Categories / IsValidCategory).
type Category string

var builtinCategories = map[Category]bool{
	"git":         true,
	"testing":     true,
	"deployment":  true,
	"debugging":   true,
	"refactoring": true,
	"docs":        true,
	"data":        true,
	"security":    true,
	"review":      true,
	"other":       true,
}

// IsValidCategory reports whether c is a member of the current category enum.
func IsValidCategory(c Category) bool { return builtinCategories[c] }

// Categories returns the current category enum members in a stable order.
func Categories() []Category {
	out := make([]Category, 0, len(builtinCategories))
	for _, c := range []Category{"git", "testing", "deployment", "debugging", "refactoring", "docs", "data", "security", "review", "other"} {
		out = append(out, c)
	}
	return out
}

// ID is the canonical "author/name" primary key of a Skill.
type ID string

// NewID constructs and validates a Skill ID from its two halves.
func NewID(author, name string) (ID, error) {
	if !idPattern.MatchString(author) {
		return "", fmt.Errorf("invalid author %q: must match %s", author, idPattern.String())
	}
	if !idPattern.MatchString(name) {
		return "", fmt.Errorf("invalid name %q: must match %s", name, idPattern.String())
	}
	return ID(author + "/" + name), nil
}

// Author returns the author half of the ID.
func (id ID) Author() string {
	for i, r := range id {
		if r == '/' {
			return string(id[:i])
		}
	}
	return string(id)
}

// Name returns the name half of the ID.
func (id ID) Name() string {
	for i, r := range id {
		if r == '/' {
			return string(id[i+1:])
		}
	}
	return ""
}

// ParsedMetadata is a schemaless key→value map of extra header fields.
// It never influences trust or security decisions — only name and
// description drive semantics (see SPEC_FULL.md design notes).
type ParsedMetadata map[string]string

// Skill is the canonical catalog entity (spec.md §3).
type Skill struct {
	ID              ID
	ContentHash     string // lowercase hex SHA-256 of canonicalized bundle bytes
	Description     string
	Tags            []string // ordered, lowercased, deduped
	Category        Category
	TrustTier       TrustTier
	QualityScore    float64 // [0,100]
	RiskScore       float64 // [0,100]
	SecurityPassed  bool
	SourceID        string
	RawBody         []byte
	ParsedMetadata  ParsedMetadata
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastScanAt      time.Time
	LastScanDecision string // scanner.Decision value, stored as a plain string to avoid an import cycle
}

// Visible reports whether the skill may be surfaced to a non-privileged
// caller: it must have passed security scanning and carry no non-terminal
// quarantine record. The quarantine half of this invariant is enforced by
// callers consulting internal/quarantine; this method only covers the
// Skill-local half of invariant (2) in spec.md §3.
func (s *Skill) Visible() bool {
	return s.SecurityPassed
}

// SkillVersion is an append-only, per-(skill,content_hash) record, pruned
// to the most recent K per skill.
type SkillVersion struct {
	SkillID     ID
	ContentHash string
	SemVer      string
	RecordedAt  time.Time
	Metadata    ParsedMetadata
}

// SourceKind enumerates the provenance kinds of a Source.
type SourceKind string

const (
	SourceRegistry      SourceKind = "registry"
	SourceGitHostOrg    SourceKind = "git-host-org"
	SourceGitHostRepo   SourceKind = "git-host-repo"
	SourceLocalFS       SourceKind = "local-fs"
	SourceWebhookIngest SourceKind = "webhook-ingest"
)

// Source is a provenance record.
type Source struct {
	ID               string
	Kind             SourceKind
	Identifier       string
	Verified         bool
	DefaultTrust     TrustTier
	LastSyncCursor   string
	LastSyncAt       time.Time
	ConsecutiveFails int
	Degraded         bool
}

// RepoMetadata is metadata a git-host-repo Source may carry,
// consumed by the Trust Classifier's community-tier rule.
type RepoMetadata struct {
	HasLicense bool
	HasReadme  bool
	IsNewSource bool
}
