package scanner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/scanner/rules"
	"github.com/nox-hq/skillforge/internal/skill"
)

// Decision is the scanner's verdict for a skill.
type Decision string

const (
	DecisionPass   Decision = "pass"
	DecisionReview Decision = "review"
	DecisionBlock  Decision = "block"
)

// ScanReport is the deterministic output of Scan.
type ScanReport struct {
	SkillID      skill.ID
	ContentHash  string
	BundleVersion string
	Findings     []Finding
	RiskScore    float64
	Decision     Decision
}

// Scanner is a deterministic, pure function of skill bytes and a versioned
// rule bundle (spec.md §4.3). It never throws on malformed input: it emits
// a single info finding and returns Decision=review instead.
type Scanner struct {
	engine *rules.Engine
	cfg    config.ScannerConfig
}

// New constructs a Scanner with the given rule set and config.
func New(rs *rules.RuleSet, cfg config.ScannerConfig) *Scanner {
	return &Scanner{
		engine: rules.NewEngine(rs, cfg.FencedCodeMultiplier, cfg.TableMultiplier),
		cfg:    cfg,
	}
}

// Scan runs every applicable rule over the parsed skill body, applies
// inline suppressions, and computes risk_score and decision per spec.md
// §4.3's algorithm.
func (s *Scanner) Scan(id skill.ID, contentHash string, body []byte) ScanReport {
	report := ScanReport{
		SkillID:       id,
		ContentHash:   contentHash,
		BundleVersion: rules.BuiltinBundleVersion,
	}

	matches, err := s.engine.ScanBody(body)
	if err != nil {
		report.Findings = []Finding{{
			SkillID:     id,
			ContentHash: contentHash,
			RuleID:      "SCAN-000",
			Category:    CategorySuspiciousCode,
			Severity:    SeverityInfo,
			Confidence:  1,
			Message:     "unparseable region",
		}}
		report.Decision = DecisionReview
		return report
	}

	suppressions := ScanForSuppressions(body)

	fs := NewFindingSet()
	for _, m := range matches {
		f := Finding{
			SkillID:     id,
			ContentHash: contentHash,
			RuleID:      m.Rule.ID,
			Category:    Category(m.Rule.Category),
			Severity:    Severity(m.Rule.Severity),
			Confidence:  Confidence(m.Confidence),
			Locator: Locator{
				StartLine: m.Result.Line, EndLine: m.Result.Line,
				StartColumn: m.Result.Column, EndColumn: m.Result.Column + len(m.Result.MatchText),
			},
			Message: m.Rule.Description,
		}
		f.Fingerprint = ComputeFingerprint(id, f.RuleID, f.Locator, m.Result.MatchText)
		if suppressed, reason := matchSuppression(suppressions, string(f.Category), f.Locator.StartLine); suppressed {
			f.Suppressed = true
			f.SuppressReason = reason
		}
		fs.Add(f)
	}
	fs.Deduplicate()
	fs.SortDeterministic()

	report.Findings = fs.Findings()
	report.RiskScore, report.Decision = s.evaluate(report.Findings)
	return report
}

// Digest returns a stable hex digest identifying this report's rule bundle
// version, decision, and finding set, independent of map/slice iteration
// order. It is the `scan_digest` in InstallManifest (spec.md §6): the
// client's proof that the install-time re-scan matched a specific verdict,
// not just the bundle bytes.
func (r ScanReport) Digest() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s\n", r.BundleVersion, r.ContentHash, r.Decision)
	for _, f := range r.Findings {
		fmt.Fprintf(h, "%s|%s|%s|%t\n", f.Fingerprint, f.Category, f.Severity, f.Suppressed)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func matchSuppression(suppressions []Suppression, category string, line int) (bool, string) {
	for _, sup := range suppressions {
		if sup.Matches(category, line) {
			return true, sup.Reason
		}
	}
	return false, ""
}

// evaluate computes risk_score and decision per spec.md §4.3: each finding
// contributes severity_weight × confidence to risk_score (clamped to 100);
// block if any finding with confidence ≥ threshold is critical, or
// cumulative high weight exceeds the block threshold; review if cumulative
// medium+high weight exceeds the review threshold. Suppressed findings
// still contribute, at a reduced weight, and can never trigger block.
func (s *Scanner) evaluate(findings []Finding) (float64, Decision) {
	var risk float64
	var highWeight, medHighWeight float64
	blockEligible := false

	for _, f := range findings {
		weight := SeverityWeight[f.Severity] * float64(f.Confidence)
		if f.Suppressed {
			weight *= s.cfg.SuppressedWeightMultiplier
		}
		risk += weight

		switch f.Severity {
		case SeverityCritical:
			if !f.Suppressed && float64(f.Confidence) >= s.cfg.CriticalBlockConfidence {
				blockEligible = true
			}
			medHighWeight += weight
		case SeverityHigh:
			if !f.Suppressed {
				highWeight += weight
			}
			medHighWeight += weight
		case SeverityMedium:
			medHighWeight += weight
		}
	}

	if risk > 100 {
		risk = 100
	}

	switch {
	case blockEligible || highWeight > s.cfg.HighWeightBlockThreshold:
		return risk, DecisionBlock
	case medHighWeight > s.cfg.MediumHighReviewThreshold:
		return risk, DecisionReview
	default:
		return risk, DecisionPass
	}
}
