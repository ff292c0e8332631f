package rules

import (
	"fmt"
	"strings"
)

const maxExternalPatternLen = 200

// ValidateExternal enforces the "Regex safety" constraints from spec.md
// §4.3 on any rule sourced from user input: length-capped, and rejected if
// it shows hallmarks of catastrophic backtracking (nested unbounded
// quantifiers, unbounded backreferences). This is a conservative static
// check, not a full linear-time proof — it rejects the well-known
// dangerous shapes without attempting general regex analysis.
func ValidateExternal(r Rule) error {
	if !ValidMatcherTypes[r.MatcherType] {
		return fmt.Errorf("invalid matcher_type %q for rule %s", r.MatcherType, r.ID)
	}
	if r.MatcherType != "regex" {
		return nil
	}
	if len(r.Pattern) > maxExternalPatternLen {
		return fmt.Errorf("rule %s: pattern exceeds %d characters", r.ID, maxExternalPatternLen)
	}
	if hasBackreference(r.Pattern) {
		return fmt.Errorf("rule %s: backreferences are not permitted in user-supplied patterns", r.ID)
	}
	if hasNestedUnboundedQuantifier(r.Pattern) {
		return fmt.Errorf("rule %s: nested unbounded quantifiers are not permitted", r.ID)
	}
	return nil
}

// hasBackreference detects \1-\9 style backreferences, which Go's RE2
// engine does not even support, but which may appear in patterns authored
// against a different engine and must be rejected rather than silently
// mis-compiled.
func hasBackreference(pattern string) bool {
	for i := 0; i < len(pattern)-1; i++ {
		if pattern[i] == '\\' && pattern[i+1] >= '1' && pattern[i+1] <= '9' {
			return true
		}
	}
	return false
}

// hasNestedUnboundedQuantifier flags the classic ReDoS shape of an
// unbounded quantifier applied to a group that itself contains an
// unbounded quantifier, e.g. (a+)+ or (a*)*.
func hasNestedUnboundedQuantifier(pattern string) bool {
	depth := 0
	groupHasUnbounded := make(map[int]bool)
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '(':
			depth++
			groupHasUnbounded[depth] = false
		case ')':
			closedDepth := depth
			depth--
			if depth >= 0 {
				// Check what follows the closing paren.
				rest := pattern[i+1:]
				if strings.HasPrefix(rest, "+") || strings.HasPrefix(rest, "*") {
					if groupHasUnbounded[closedDepth] {
						return true
					}
				}
			}
		case '+', '*':
			if depth > 0 {
				groupHasUnbounded[depth] = true
			}
		}
	}
	return false
}
