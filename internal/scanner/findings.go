// Package scanner implements the multi-category static analyzer (C3). This
// file defines the canonical ScanFinding model, adapted from the teacher's
// core/findings package: the same Severity/Confidence vocabulary and
// FindingSet collection semantics, retargeted from source-file findings to
// skill-bundle findings keyed by (skill_id, content_hash).
package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/nox-hq/skillforge/internal/skill"
)

// Severity indicates how critical a finding is, ordered from most to least
// severe.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// SeverityWeight assigns a contribution weight toward risk_score.
var SeverityWeight = map[Severity]float64{
	SeverityCritical: 40,
	SeverityHigh:     20,
	SeverityMedium:   8,
	SeverityLow:      2,
	SeverityInfo:     0,
}

// Confidence expresses certainty that a finding is a true positive.
type Confidence float64

// Category enumerates the finding categories from spec.md §3.
type Category string

const (
	CategoryJailbreak         Category = "jailbreak"
	CategoryAIDefense         Category = "ai-defense"
	CategoryPrivEscalation    Category = "priv-escalation"
	CategorySocialEngineering Category = "social-engineering"
	CategoryPromptLeak        Category = "prompt-leak"
	CategoryExfiltration      Category = "exfiltration"
	CategorySensitivePath     Category = "sensitive-path"
	CategorySuspiciousCode    Category = "suspicious-code"
	CategoryURLReputation     Category = "url-reputation"
)

// Locator pinpoints where a finding was detected within the skill bundle
// text (the body, since header fields are not scanned for content rules).
type Locator struct {
	StartLine   int
	EndLine     int
	StartColumn int
	EndColumn   int
}

// Finding is a single security observation produced by the Scanner.
type Finding struct {
	SkillID        skill.ID
	ContentHash    string
	RuleID         string
	Category       Category
	Severity       Severity
	Confidence     Confidence
	Locator        Locator
	Message        string
	Fingerprint    string
	Suppressed     bool
	SuppressReason string
	// Baselined marks a finding whose fingerprint matches one already
	// approved out of quarantine on a prior scan of this skill. Set by the
	// indexer, never by the Scanner itself, so Scan stays a pure function
	// of (id, contentHash, body).
	Baselined bool
}

// ComputeFingerprint derives a stable identity for a finding from its rule,
// location, and the exact matched snippet — mirroring
// core/findings.ComputeFingerprint in the teacher, retargeted to skill
// bundles (snippet is hashed, never stored verbatim, per spec.md's
// snippet_hash field).
func ComputeFingerprint(skillID skill.ID, ruleID string, loc Locator, snippet string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%d|%s", skillID, ruleID, loc.StartLine, loc.StartColumn, SnippetHash(snippet))
	return hex.EncodeToString(h.Sum(nil))
}

// SnippetHash returns a content hash of the matched text, never the text
// itself, so findings can be de-duplicated and persisted without retaining
// potentially sensitive matched substrings.
func SnippetHash(snippet string) string {
	h := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(h[:])
}

// FindingSet is an ordered, deduplicated collection of findings, the
// primary structure passed between Scanner stages — adapted from
// core/findings.FindingSet.
type FindingSet struct {
	items []Finding
}

// NewFindingSet returns an empty FindingSet.
func NewFindingSet() *FindingSet { return &FindingSet{} }

// Add appends a finding, computing its fingerprint if absent.
func (fs *FindingSet) Add(f Finding) {
	if f.Fingerprint == "" {
		f.Fingerprint = ComputeFingerprint(f.SkillID, f.RuleID, f.Locator, f.Message)
	}
	fs.items = append(fs.items, f)
}

// Deduplicate removes findings sharing the same Fingerprint, keeping the
// first occurrence.
func (fs *FindingSet) Deduplicate() {
	seen := make(map[string]struct{}, len(fs.items))
	unique := make([]Finding, 0, len(fs.items))
	for _, f := range fs.items {
		if _, ok := seen[f.Fingerprint]; ok {
			continue
		}
		seen[f.Fingerprint] = struct{}{}
		unique = append(unique, f)
	}
	fs.items = unique
}

// SortDeterministic orders findings by RuleID then StartLine, guaranteeing
// reproducible output regardless of rule evaluation order.
func (fs *FindingSet) SortDeterministic() {
	sort.Slice(fs.items, func(i, j int) bool {
		a, b := fs.items[i], fs.items[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.Locator.StartLine < b.Locator.StartLine
	})
}

// Findings returns the current findings. Callers must not mutate the slice.
func (fs *FindingSet) Findings() []Finding { return fs.items }

// Active returns findings that are not suppressed.
func (fs *FindingSet) Active() []Finding {
	var out []Finding
	for _, f := range fs.items {
		if !f.Suppressed {
			out = append(out, f)
		}
	}
	return out
}
