package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

var validSeverities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
	"info":     true,
}

var validCategories = map[string]bool{
	"jailbreak":          true,
	"ai-defense":         true,
	"priv-escalation":    true,
	"social-engineering": true,
	"prompt-leak":        true,
	"exfiltration":       true,
	"sensitive-path":     true,
	"suspicious-code":    true,
	"url-reputation":     true,
}

// LoadBuiltinFromDir reads all .yaml/.yml files in dir as the frozen
// built-in rule bundle, in lexicographic order for determinism — adapted
// from core/rules.LoadRulesFromDir.
func LoadBuiltinFromDir(dir string) (*RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rules directory %s: %w", dir, err)
	}
	rs := NewRuleSet()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		var rf ruleFile
		if err := yaml.Unmarshal(data, &rf); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		for i, r := range rf.Rules {
			if err := validateBuiltin(r); err != nil {
				return nil, fmt.Errorf("rule %d in %s: %w", i, entry.Name(), err)
			}
			rs.Add(r)
		}
	}
	return rs, nil
}

func validateBuiltin(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("rule ID must not be empty")
	}
	if !ValidMatcherTypes[r.MatcherType] {
		return fmt.Errorf("invalid matcher_type %q for rule %s", r.MatcherType, r.ID)
	}
	if !validSeverities[r.Severity] {
		return fmt.Errorf("invalid severity %q for rule %s", r.Severity, r.ID)
	}
	if !validCategories[r.Category] {
		return fmt.Errorf("invalid category %q for rule %s", r.Category, r.ID)
	}
	return nil
}
