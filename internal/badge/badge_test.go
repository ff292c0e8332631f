package badge

import (
	"strings"
	"testing"

	"github.com/nox-hq/skillforge/internal/skill"
)

func TestQualityGrade_Thresholds(t *testing.T) {
	tests := []struct {
		score      float64
		wantLetter string
	}{
		{95, "A"},
		{90, "A"},
		{80, "B"},
		{65, "C"},
		{45, "D"},
		{10, "E"},
		{0, "E"},
	}
	for _, tt := range tests {
		letter, _ := QualityGrade(tt.score)
		if letter != tt.wantLetter {
			t.Errorf("QualityGrade(%v) letter = %q, want %q", tt.score, letter, tt.wantLetter)
		}
	}
}

func TestTrustBadge_UnknownTierFallsBackToGray(t *testing.T) {
	r := TrustBadge("trust", skill.TrustTier("made-up"))
	if r.Color != "#9f9f9f" {
		t.Errorf("Color = %q, want fallback gray", r.Color)
	}
}

func TestTrustBadge_KnownTierUsesMappedColor(t *testing.T) {
	r := TrustBadge("trust", skill.TrustVerified)
	if r.Color != "#4c1" {
		t.Errorf("Color = %q, want #4c1", r.Color)
	}
	if r.Value != string(skill.TrustVerified) {
		t.Errorf("Value = %q, want %q", r.Value, skill.TrustVerified)
	}
}

func TestGenerateSVG_ContainsLabelAndValue(t *testing.T) {
	svg := GenerateSVG("quality", "A", "#4c1")
	if !strings.Contains(svg, "<svg") || !strings.Contains(svg, "</svg>") {
		t.Error("expected a well-formed svg root element")
	}
	if !strings.Contains(svg, "quality") {
		t.Error("expected label text in SVG output")
	}
	if !strings.Contains(svg, ">A<") {
		t.Error("expected value text in SVG output")
	}
	if !strings.Contains(svg, "#4c1") {
		t.Error("expected color in SVG output")
	}
}

func TestQualityBadge_RendersSVG(t *testing.T) {
	r := QualityBadge("quality", 92)
	if r.Value != "A" {
		t.Errorf("Value = %q, want A", r.Value)
	}
	if r.SVG == "" {
		t.Error("expected non-empty SVG")
	}
}
