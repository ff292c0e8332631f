// Package rules implements the declarative, YAML-loadable rule bundle that
// drives the Scanner (C3), adapted from the teacher's core/rules package.
// Rules are matched against skill bundle body text rather than source
// files, and every rule carries a Category from spec.md's finding taxonomy.
package rules

// ValidMatcherTypes enumerates the matcher type strings a Rule may
// reference. The built-in rule set is frozen at build time (spec.md §4.3);
// only "regex" and "entropy" are implemented, the rest reserved.
var ValidMatcherTypes = map[string]bool{
	"regex":     true,
	"entropy":   true,
	"heuristic": true,
}

// Rule is a single declarative scanner rule.
type Rule struct {
	ID          string            `yaml:"id"`
	Category    string            `yaml:"category"`
	Severity    string            `yaml:"severity"`
	Confidence  float64           `yaml:"confidence"`
	MatcherType string            `yaml:"matcher_type"`
	Pattern     string            `yaml:"pattern"`
	Keywords    []string          `yaml:"keywords"`
	Description string            `yaml:"description"`
	Metadata    map[string]string `yaml:"metadata"`
}

// Sourced marks whether a Rule came from the frozen built-in bundle or was
// supplied at runtime (e.g. by an operator). Only sourced-external rules
// are subject to the length cap and linear-time regex check in spec.md
// §4.3 ("Regex safety").
type Sourced struct {
	Rule
	External bool
}

// RuleSet is an ordered collection of rules with lookup by ID.
type RuleSet struct {
	rules []Sourced
	byID  map[string]int
}

// NewRuleSet returns an initialised, empty RuleSet.
func NewRuleSet() *RuleSet {
	return &RuleSet{byID: make(map[string]int)}
}

// Add appends a built-in rule.
func (rs *RuleSet) Add(r Rule) {
	rs.addSourced(Sourced{Rule: r, External: false})
}

// AddExternal appends an operator-supplied rule, subject to the safety
// checks in ValidateExternal.
func (rs *RuleSet) AddExternal(r Rule) error {
	if err := ValidateExternal(r); err != nil {
		return err
	}
	rs.addSourced(Sourced{Rule: r, External: true})
	return nil
}

func (rs *RuleSet) addSourced(s Sourced) {
	idx := len(rs.rules)
	rs.rules = append(rs.rules, s)
	rs.byID[s.ID] = idx
}

// Rules returns all rules in insertion order.
func (rs *RuleSet) Rules() []Sourced { return rs.rules }

// ByID looks up a rule by ID.
func (rs *RuleSet) ByID(id string) (Sourced, bool) {
	idx, ok := rs.byID[id]
	if !ok {
		return Sourced{}, false
	}
	return rs.rules[idx], true
}

// BuiltinBundleVersion identifies the frozen built-in rule bundle, recorded
// on every ScanReport so re-scans can detect a stale verdict.
const BuiltinBundleVersion = "2025.1"
