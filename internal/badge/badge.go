// Package badge generates SVG status badges for skills, adapted from the
// teacher's core/badge package. There, a badge graded a scan's weighted
// finding severity counts; here the same scoring-then-SVG shape grades a
// skill's quality_score and trust_tier instead, since skills (not scans)
// are this module's unit of presentation.
package badge

import (
	"fmt"
	"math"

	"github.com/nox-hq/skillforge/internal/skill"
)

// Result holds badge generation output.
type Result struct {
	Label string
	Value string
	Color string
	SVG   string
}

// trustColors maps trust tier to a badge color, most to least permissive.
var trustColors = map[skill.TrustTier]string{
	skill.TrustVerified:     "#4c1",
	skill.TrustCurated:      "#97ca00",
	skill.TrustCommunity:    "#a3c51c",
	skill.TrustExperimental: "#dfb317",
	skill.TrustUnknown:      "#e05d44",
	skill.TrustLocal:        "#007ec6",
}

// qualityThresholds maps a minimum quality score to a letter grade and
// badge color, checked from highest to lowest.
var qualityThresholds = []struct {
	minScore float64
	letter   string
	color    string
}{
	{90, "A", "#4c1"},
	{75, "B", "#97ca00"},
	{60, "C", "#dfb317"},
	{40, "D", "#fe7d37"},
	{0, "E", "#e05d44"},
}

// QualityGrade returns the letter grade and color for a quality score.
func QualityGrade(score float64) (letter, color string) {
	for _, t := range qualityThresholds {
		if score >= t.minScore {
			return t.letter, t.color
		}
	}
	return "E", "#e05d44"
}

// TrustBadge renders a skill's trust tier as a badge.
func TrustBadge(label string, tier skill.TrustTier) *Result {
	color, ok := trustColors[tier]
	if !ok {
		color = "#9f9f9f"
	}
	value := string(tier)
	return &Result{Label: label, Value: value, Color: color, SVG: GenerateSVG(label, value, color)}
}

// QualityBadge renders a skill's quality score as a letter-grade badge.
func QualityBadge(label string, score float64) *Result {
	letter, color := QualityGrade(score)
	return &Result{Label: label, Value: letter, Color: color, SVG: GenerateSVG(label, letter, color)}
}

// GenerateSVG produces an SVG badge string for the given label, value, and
// color, unchanged from the shields.io flat-badge layout the teacher uses.
func GenerateSVG(label, value, color string) string {
	labelW := textWidth(label) + 10
	valueW := textWidth(value) + 10
	totalW := labelW + valueW

	labelX := labelW * 10 / 2
	valueX := (labelW + valueW/2) * 10

	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="20" role="img" aria-label="%s: %s">
  <title>%s: %s</title>
  <linearGradient id="s" x2="0" y2="100%%">
    <stop offset="0" stop-color="#bbb" stop-opacity=".1"/>
    <stop offset="1" stop-opacity=".1"/>
  </linearGradient>
  <clipPath id="r">
    <rect width="%d" height="20" rx="3" fill="#fff"/>
  </clipPath>
  <g clip-path="url(#r)">
    <rect width="%d" height="20" fill="#555"/>
    <rect x="%d" width="%d" height="20" fill="%s"/>
    <rect width="%d" height="20" fill="url(#s)"/>
  </g>
  <g fill="#fff" text-anchor="middle" font-family="Verdana,Geneva,DejaVu Sans,sans-serif" text-rendering="geometricPrecision" font-size="110">
    <text aria-hidden="true" x="%d" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">%s</text>
    <text x="%d" y="140" transform="scale(.1)">%s</text>
    <text aria-hidden="true" x="%d" y="150" fill="#010101" fill-opacity=".3" transform="scale(.1)">%s</text>
    <text x="%d" y="140" transform="scale(.1)">%s</text>
  </g>
</svg>
`,
		totalW, label, value,
		label, value,
		totalW,
		labelW,
		labelW, valueW, color,
		totalW,
		labelX, label,
		labelX, label,
		valueX, value,
		valueX, value,
	)
}

// textWidth estimates the pixel width of a string rendered in Verdana
// 11px, matching the shields.io flat badge style.
func textWidth(s string) int {
	w := 0.0
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
			w += 7.5
		case c >= 'a' && c <= 'z':
			w += 6.1
		case c >= '0' && c <= '9':
			w += 6.5
		case c == ' ':
			w += 3.3
		default:
			w += 6.0
		}
	}
	return int(math.Ceil(w))
}
