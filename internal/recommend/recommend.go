// Package recommend implements the Recommender (C10): codebase-context
// query synthesis, installed-skill exclusion, Jaccard overlap filtering,
// and framework-tag boosting, layered on top of internal/search. The
// Jaccard-overlap-then-filter shape mirrors the teacher's
// core/baseline.Diff, which compares two finding sets by fingerprint
// overlap and reports what it suppressed rather than silently dropping
// it — here the "what got filtered" reporting carries over to
// recommendation overlap pruning.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nox-hq/skillforge/internal/collab"
	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/search"
	"github.com/nox-hq/skillforge/internal/skill"
)

// Recommendation is a single suggested skill with the reason it scored.
type Recommendation struct {
	Skill          skill.Skill
	Score          float64
	FrameworkBoost bool
}

// Response is the recommendation set plus the overlap-filtered skills
// that were excluded and why, so callers can explain "why isn't X here".
type Response struct {
	Recommendations []Recommendation
	Filtered        []FilteredSkill
}

// FilteredSkill records a candidate dropped from the recommendation list,
// either for overlapping an already-installed skill's tags or for
// overlapping a higher-ranked candidate (spec.md §4.10 step 2).
type FilteredSkill struct {
	Skill          skill.Skill
	OverlapsWith   string
	JaccardOverlap float64
	Reason         string
}

// Reason values for FilteredSkill.
const (
	ReasonInstalledOverlap = "installed-overlap"
	ReasonTriggerOverlap   = "trigger-overlap"
)

// Service synthesizes recommendation queries from a CodebaseContext.
type Service struct {
	search *search.Service
	cfg    config.RecommendConfig
}

// New constructs a Service over an existing search.Service.
func New(s *search.Service, cfg config.RecommendConfig) *Service {
	return &Service{search: s, cfg: cfg}
}

// Recommend synthesizes a search query from the caller's codebase
// context, runs it, excludes already-installed skills, filters out
// candidates whose tag set overlaps an installed skill's at or above the
// configured Jaccard threshold, and boosts framework-matching results.
func (s *Service) Recommend(ctx context.Context, cc collab.CodebaseContext, installedTags map[string][]string, k int) (*Response, error) {
	queryText := synthesizeQuery(cc)
	installed := make(map[string]bool, len(cc.InstalledIDs))
	for _, id := range cc.InstalledIDs {
		installed[id] = true
	}

	resp, err := s.search.Search(ctx, search.Query{Text: queryText, K: k * 3})
	if err != nil {
		return nil, fmt.Errorf("recommend search: %w", err)
	}

	var recs []Recommendation
	var filtered []FilteredSkill

	for _, r := range resp.Results {
		if installed[string(r.Skill.ID)] {
			continue
		}

		overlapID, overlap := maxOverlap(r.Skill.Tags, installedTags, s.cfg.OverlapJaccardThreshold)
		if overlapID != "" {
			filtered = append(filtered, FilteredSkill{Skill: r.Skill, OverlapsWith: overlapID, JaccardOverlap: overlap, Reason: ReasonInstalledOverlap})
			continue
		}

		score := r.FusedScore
		boosted := false
		if matchesFramework(r.Skill.Tags, cc.Frameworks) {
			score += s.cfg.FrameworkBoost
			boosted = true
		}
		recs = append(recs, Recommendation{Skill: r.Skill, Score: score, FrameworkBoost: boosted})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		return recs[i].Skill.ID < recs[j].Skill.ID
	})

	recs, overlapFiltered := dedupeOverlapping(recs, s.cfg.OverlapJaccardThreshold)
	filtered = append(filtered, overlapFiltered...)

	if len(recs) > k {
		recs = recs[:k]
	}

	return &Response{Recommendations: recs, Filtered: filtered}, nil
}

// dedupeOverlapping applies spec.md §4.10 step 2: two candidates overlap if
// their description trigger-phrase sets have Jaccard similarity >=
// threshold, or their (tags, category) match exactly. Among an overlapping
// group, only the highest-ranked survives; input must already be sorted
// highest-ranked first so a later, lower-ranked candidate always compares
// against (and loses to) an earlier, already-kept one. Deterministic given
// identical input, satisfying the overlap-idempotence property (spec.md
// §8.7).
func dedupeOverlapping(ranked []Recommendation, threshold float64) ([]Recommendation, []FilteredSkill) {
	kept := make([]Recommendation, 0, len(ranked))
	var filtered []FilteredSkill

	for _, cand := range ranked {
		candPhrases := triggerPhrases(cand.Skill.Description)
		survivedAgainst := ""
		var survivedScore float64
		overlapped := false
		for _, k := range kept {
			j := jaccardSet(candPhrases, triggerPhrases(k.Skill.Description))
			exact := tagsEqual(cand.Skill.Tags, k.Skill.Tags) && cand.Skill.Category == k.Skill.Category
			if j >= threshold || exact {
				overlapped = true
				survivedAgainst = string(k.Skill.ID)
				survivedScore = j
				break
			}
		}
		if overlapped {
			filtered = append(filtered, FilteredSkill{
				Skill:          cand.Skill,
				OverlapsWith:   survivedAgainst,
				JaccardOverlap: survivedScore,
				Reason:         ReasonTriggerOverlap,
			})
			continue
		}
		kept = append(kept, cand)
	}
	return kept, filtered
}

// stopWords are filtered out of descriptions before extracting trigger
// phrases, since they carry no discriminating signal between two skills'
// invocation contexts.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "your": true, "when": true, "into": true,
	"use": true, "used": true, "uses": true, "using": true, "will": true,
	"are": true, "you": true, "can": true, "all": true, "any": true,
	"skill": true, "skills": true, "agent": true, "helps": true, "helper": true,
}

// triggerPhrases extracts the set of meaningful, lowercased words from a
// skill's description: a coarse stand-in for the phrase-level "use when…"
// trigger extraction a real NLP pipeline would run, sufficient for Jaccard
// comparison between two descriptions.
func triggerPhrases(description string) map[string]bool {
	words := strings.FieldsFunc(strings.ToLower(description), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	set := make(map[string]bool, len(words))
	for _, w := range words {
		if len(w) < 4 || stopWords[w] {
			continue
		}
		set[w] = true
	}
	return set
}

func jaccardSet(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var intersection int
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tagsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	setA := toSet(a)
	for _, t := range b {
		if !setA[strings.ToLower(t)] {
			return false
		}
	}
	return true
}

func synthesizeQuery(cc collab.CodebaseContext) string {
	parts := append([]string{}, cc.Languages...)
	parts = append(parts, cc.Frameworks...)
	parts = append(parts, cc.Dependencies...)
	return strings.Join(parts, " ")
}

func matchesFramework(tags, frameworks []string) bool {
	fw := make(map[string]bool, len(frameworks))
	for _, f := range frameworks {
		fw[strings.ToLower(f)] = true
	}
	for _, t := range tags {
		if fw[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

// maxOverlap returns the installed skill ID with the highest Jaccard
// overlap against candidateTags, if it meets or exceeds threshold.
func maxOverlap(candidateTags []string, installedTags map[string][]string, threshold float64) (string, float64) {
	var bestID string
	var bestScore float64
	for id, tags := range installedTags {
		j := jaccard(candidateTags, tags)
		if j > bestScore {
			bestScore = j
			bestID = id
		}
	}
	if bestScore >= threshold {
		return bestID, bestScore
	}
	return "", 0
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	var intersection int
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[strings.ToLower(i)] = true
	}
	return set
}
