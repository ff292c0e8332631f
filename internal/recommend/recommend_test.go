package recommend

import (
	"testing"

	"github.com/nox-hq/skillforge/internal/collab"
	"github.com/nox-hq/skillforge/internal/skill"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical sets", []string{"go", "http"}, []string{"go", "http"}, 1.0},
		{"disjoint sets", []string{"go"}, []string{"python"}, 0.0},
		{"partial overlap", []string{"go", "http", "grpc"}, []string{"go", "http"}, 2.0 / 3.0},
		{"both empty", nil, nil, 0.0},
		{"case insensitive", []string{"Go"}, []string{"go"}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := jaccard(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("jaccard(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMaxOverlap_ReturnsBestMatchAboveThreshold(t *testing.T) {
	installed := map[string][]string{
		"skill-a": {"go", "http"},
		"skill-b": {"go", "http", "grpc"},
	}
	id, score := maxOverlap([]string{"go", "http", "grpc"}, installed, 0.5)
	if id != "skill-b" {
		t.Errorf("OverlapsWith = %q, want skill-b", id)
	}
	if score != 1.0 {
		t.Errorf("JaccardOverlap = %v, want 1.0", score)
	}
}

func TestMaxOverlap_BelowThresholdReturnsEmpty(t *testing.T) {
	installed := map[string][]string{"skill-a": {"rust", "cli"}}
	id, score := maxOverlap([]string{"go", "http"}, installed, 0.5)
	if id != "" || score != 0 {
		t.Errorf("expected no match below threshold, got id=%q score=%v", id, score)
	}
}

func TestMatchesFramework(t *testing.T) {
	if !matchesFramework([]string{"React", "ui"}, []string{"react"}) {
		t.Error("expected case-insensitive framework match")
	}
	if matchesFramework([]string{"vue"}, []string{"react"}) {
		t.Error("expected no match for disjoint tag/framework sets")
	}
}

func TestDedupeOverlapping_KeepsHighestRankedOfOverlappingTriggerPhrases(t *testing.T) {
	idA, _ := skill.NewID("alice", "test-gen")
	idB, _ := skill.NewID("alice", "test-gen-v2")
	idC, _ := skill.NewID("bob", "unrelated-helper")

	ranked := []Recommendation{
		{Skill: skill.Skill{ID: idA, Description: "generate unit tests for your go project automatically", Tags: []string{"testing"}, Category: skill.Category("testing")}, Score: 0.9},
		{Skill: skill.Skill{ID: idB, Description: "generate unit tests for your go project, now with coverage", Tags: []string{"testing"}, Category: skill.Category("testing")}, Score: 0.7},
		{Skill: skill.Skill{ID: idC, Description: "format commit messages according to conventional commits", Tags: []string{"git"}, Category: skill.Category("other")}, Score: 0.5},
	}

	kept, filtered := dedupeOverlapping(ranked, 0.6)

	if len(kept) != 2 {
		t.Fatalf("expected 2 survivors, got %d: %+v", len(kept), kept)
	}
	if kept[0].Skill.ID != idA {
		t.Errorf("expected higher-ranked %s to survive, got %s", idA, kept[0].Skill.ID)
	}
	if len(filtered) != 1 || filtered[0].Skill.ID != idB {
		t.Fatalf("expected %s filtered as trigger-overlap, got %+v", idB, filtered)
	}
	if filtered[0].Reason != ReasonTriggerOverlap {
		t.Errorf("Reason = %q, want %q", filtered[0].Reason, ReasonTriggerOverlap)
	}
	if filtered[0].OverlapsWith != string(idA) {
		t.Errorf("OverlapsWith = %q, want %q", filtered[0].OverlapsWith, idA)
	}
}

func TestDedupeOverlapping_ExactTagsAndCategoryOverlapEvenWithLowTextSimilarity(t *testing.T) {
	idA, _ := skill.NewID("alice", "first")
	idB, _ := skill.NewID("alice", "second")

	ranked := []Recommendation{
		{Skill: skill.Skill{ID: idA, Description: "completely different wording here", Tags: []string{"testing", "go"}, Category: skill.Category("testing")}, Score: 1.0},
		{Skill: skill.Skill{ID: idB, Description: "another unrelated sentence entirely", Tags: []string{"go", "testing"}, Category: skill.Category("testing")}, Score: 0.8},
	}

	kept, filtered := dedupeOverlapping(ranked, 0.6)
	if len(kept) != 1 || kept[0].Skill.ID != idA {
		t.Fatalf("expected only %s to survive exact tag/category overlap, got %+v", idA, kept)
	}
	if len(filtered) != 1 || filtered[0].Reason != ReasonTriggerOverlap {
		t.Fatalf("expected %s filtered as trigger-overlap, got %+v", idB, filtered)
	}
}

func TestDedupeOverlapping_IsIdempotentAcrossRepeatedRuns(t *testing.T) {
	idA, _ := skill.NewID("alice", "test-gen")
	idB, _ := skill.NewID("alice", "test-gen-v2")
	ranked := []Recommendation{
		{Skill: skill.Skill{ID: idA, Description: "generate unit tests for your go project automatically", Tags: []string{"testing"}}, Score: 0.9},
		{Skill: skill.Skill{ID: idB, Description: "generate unit tests for your go project, now with coverage", Tags: []string{"testing"}}, Score: 0.7},
	}

	kept1, filtered1 := dedupeOverlapping(ranked, 0.6)
	kept2, filtered2 := dedupeOverlapping(ranked, 0.6)

	if len(kept1) != len(kept2) || kept1[0].Skill.ID != kept2[0].Skill.ID {
		t.Fatalf("expected identical survivors across runs, got %+v vs %+v", kept1, kept2)
	}
	if len(filtered1) != len(filtered2) {
		t.Fatalf("expected identical filtered set size across runs, got %d vs %d", len(filtered1), len(filtered2))
	}
}

func TestSynthesizeQuery_JoinsAllContextFields(t *testing.T) {
	cc := collab.CodebaseContext{
		Languages:    []string{"go"},
		Frameworks:   []string{"gin"},
		Dependencies: []string{"gorm"},
	}
	got := synthesizeQuery(cc)
	want := "go gin gorm"
	if got != want {
		t.Errorf("synthesizeQuery = %q, want %q", got, want)
	}
}
