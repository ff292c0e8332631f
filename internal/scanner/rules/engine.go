package rules

import (
	"bytes"
	"fmt"
)

// Engine ties a RuleSet and a MatcherRegistry together to scan skill body
// text and produce raw matches with context-adjusted confidence. It does
// not itself build scanner.Finding values — that's the Scanner's job
// (internal/scanner), which layers severity weighting, risk scoring, and
// the pass/review/block decision on top.
type Engine struct {
	rules    *RuleSet
	matchers *MatcherRegistry

	fencedMultiplier float64
	tableMultiplier  float64
}

// NewEngine creates an Engine with the given rules and context-reduction
// multipliers (spec.md §4.3: default 0.4 fenced, 0.6 table).
func NewEngine(rs *RuleSet, fencedMultiplier, tableMultiplier float64) *Engine {
	return &Engine{
		rules:            rs,
		matchers:         NewDefaultMatcherRegistry(),
		fencedMultiplier: fencedMultiplier,
		tableMultiplier:  tableMultiplier,
	}
}

// Rules returns the engine's RuleSet.
func (e *Engine) Rules() *RuleSet { return e.rules }

// RawMatch is a single rule match with its context-adjusted confidence.
type RawMatch struct {
	Rule       Rule
	Result     MatchResult
	Confidence float64
}

// ScanBody runs every rule against content and returns raw matches with
// confidence discounted for matches that fall inside fenced code blocks or
// table rows (spec.md §4.3 "context reduction rules").
func (e *Engine) ScanBody(content []byte) ([]RawMatch, error) {
	regions := classifyLines(content)
	lower := bytes.ToLower(content)

	var out []RawMatch
	for _, sr := range e.rules.Rules() {
		rule := sr.Rule
		if len(rule.Keywords) > 0 && !containsAnyKeyword(lower, rule.Keywords) {
			continue
		}
		matcher := e.matchers.Get(rule.MatcherType)
		if matcher == nil {
			return nil, fmt.Errorf("no matcher registered for type %q (rule %s)", rule.MatcherType, rule.ID)
		}
		for _, mr := range matcher.Match(content, rule) {
			conf := rule.Confidence
			if mr.Line-1 >= 0 && mr.Line-1 < len(regions) {
				switch regions[mr.Line-1] {
				case regionFenced:
					conf *= e.fencedMultiplier
				case regionTable:
					conf *= e.tableMultiplier
				}
			}
			out = append(out, RawMatch{Rule: rule, Result: mr, Confidence: conf})
		}
	}
	return out, nil
}

func containsAnyKeyword(contentLower []byte, keywords []string) bool {
	for _, kw := range keywords {
		if bytes.Contains(contentLower, []byte(kw)) {
			return true
		}
	}
	return false
}

type lineRegion int

const (
	regionProse lineRegion = iota
	regionFenced
	regionTable
)

// classifyLines returns, per 0-based line index, whether that line falls
// inside a fenced code block (``` ... ```) or a markdown table row.
func classifyLines(content []byte) []lineRegion {
	lines := bytes.Split(content, []byte("\n"))
	regions := make([]lineRegion, len(lines))
	inFence := false
	for i, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if bytes.HasPrefix(trimmed, []byte("```")) {
			inFence = !inFence
			regions[i] = regionFenced
			continue
		}
		if inFence {
			regions[i] = regionFenced
			continue
		}
		if isTableRow(trimmed) {
			regions[i] = regionTable
			continue
		}
		regions[i] = regionProse
	}
	return regions
}

// isTableRow recognizes markdown table rows/separators: lines that start
// and end with '|', or separator lines like "|---|---|".
func isTableRow(trimmed []byte) bool {
	if len(trimmed) < 2 {
		return false
	}
	return bytes.HasPrefix(trimmed, []byte("|")) && bytes.HasSuffix(trimmed, []byte("|"))
}
