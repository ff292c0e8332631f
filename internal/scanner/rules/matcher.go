package rules

import (
	"bytes"
	"fmt"
	"regexp"
	"sync"
)

// MatchResult describes a single match of a rule pattern within skill body
// content.
type MatchResult struct {
	Line      int
	Column    int
	MatchText string
}

// Matcher is the pluggable pattern-matching strategy interface.
type Matcher interface {
	Match(content []byte, rule Rule) []MatchResult
}

// RegexMatcher implements Matcher with a cached, compiled regexp pool —
// adapted from core/rules.RegexMatcher in the teacher.
type RegexMatcher struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// NewRegexMatcher returns a RegexMatcher with an initialised pattern cache.
func NewRegexMatcher() *RegexMatcher {
	return &RegexMatcher{cache: make(map[string]*regexp.Regexp)}
}

func (m *RegexMatcher) compile(pattern string) (*regexp.Regexp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}
	m.cache[pattern] = re
	return re, nil
}

// Match finds all occurrences of rule.Pattern in content.
func (m *RegexMatcher) Match(content []byte, rule Rule) []MatchResult {
	re, err := m.compile(rule.Pattern)
	if err != nil {
		return nil
	}

	lines := bytes.SplitAfter(content, []byte("\n"))
	lineStarts := make([]int, len(lines))
	offset := 0
	for i, line := range lines {
		lineStarts[i] = offset
		offset += len(line)
	}

	matches := re.FindAllIndex(content, -1)
	results := make([]MatchResult, 0, len(matches))
	for _, loc := range matches {
		start, end := loc[0], loc[1]
		line := findLine(lineStarts, start)
		col := start - lineStarts[line] + 1
		results = append(results, MatchResult{
			Line:      line + 1,
			Column:    col,
			MatchText: string(content[start:end]),
		})
	}
	return results
}

func findLine(lineStarts []int, offset int) int {
	for i := len(lineStarts) - 1; i >= 0; i-- {
		if lineStarts[i] <= offset {
			return i
		}
	}
	return 0
}

// MatcherRegistry maps matcher type strings to implementations.
type MatcherRegistry struct {
	matchers map[string]Matcher
}

// NewMatcherRegistry returns an empty registry.
func NewMatcherRegistry() *MatcherRegistry {
	return &MatcherRegistry{matchers: make(map[string]Matcher)}
}

// Register associates a matcher type with an implementation.
func (r *MatcherRegistry) Register(matcherType string, m Matcher) {
	r.matchers[matcherType] = m
}

// Get returns the Matcher for matcherType, or nil.
func (r *MatcherRegistry) Get(matcherType string) Matcher {
	return r.matchers[matcherType]
}

// NewDefaultMatcherRegistry returns a registry with the built-in matchers.
func NewDefaultMatcherRegistry() *MatcherRegistry {
	r := NewMatcherRegistry()
	r.Register("regex", NewRegexMatcher())
	r.Register("entropy", &EntropyMatcher{})
	return r
}
