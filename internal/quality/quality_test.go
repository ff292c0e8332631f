package quality

import (
	"testing"
	"time"
)

func TestScore_EmptyBodyScoresLow(t *testing.T) {
	sig := Signals{Now: time.Now()}
	got := Score("", []byte(""), sig)
	if got > 15 {
		t.Errorf("Score for empty body+description = %v, want a low score", got)
	}
}

func TestScore_RichSkillScoresHigh(t *testing.T) {
	desc := make([]byte, 0, 220)
	for i := 0; i < 220; i++ {
		desc = append(desc, 'a')
	}
	body := []byte("## Usage\n\nSee [link one](http://a) and [link two](http://b).\n\n" +
		"```go\nfmt.Println(\"hi\")\n```\n\n```python\nprint('hi')\n```\n\n```bash\necho hi\n```\n")
	for len(body) < 4100 {
		body = append(body, 'x')
	}
	now := time.Now()
	sig := Signals{
		HasScriptsOrResources: true,
		SourceLastActivity:    now,
		CreatedAt:             now,
		UpdatedAt:             now,
		Now:                   now,
	}
	got := Score(string(desc), body, sig)
	if got < 85 {
		t.Errorf("Score for rich skill = %v, want >= 85", got)
	}
	if got > 100 {
		t.Errorf("Score = %v exceeds max 100", got)
	}
}

func TestScore_MonotonicInDescriptionLength(t *testing.T) {
	body := []byte("some body content")
	now := time.Now()
	sig := Signals{CreatedAt: now, UpdatedAt: now, SourceLastActivity: now, Now: now}

	short := Score("a short description", body, sig)
	long := make([]byte, 0, 200)
	for i := 0; i < 200; i++ {
		long = append(long, 'b')
	}
	longScore := Score(string(long), body, sig)

	if longScore < short {
		t.Errorf("longer description scored lower: %v < %v", longScore, short)
	}
}

func TestMaintenanceScore_LagPenalized(t *testing.T) {
	now := time.Now()
	fresh := maintenanceScore(Signals{SourceLastActivity: now, UpdatedAt: now})
	stale := maintenanceScore(Signals{SourceLastActivity: now, UpdatedAt: now.Add(-200 * 24 * time.Hour)})
	if stale >= fresh {
		t.Errorf("stale maintenance score %v should be less than fresh %v", stale, fresh)
	}
}

func TestFreshnessScore_DecaysWithAgeButHasFloor(t *testing.T) {
	now := time.Now()
	newScore := freshnessScore(Signals{CreatedAt: now, Now: now})
	oldScore := freshnessScore(Signals{CreatedAt: now.Add(-2000 * 24 * time.Hour), Now: now})
	if oldScore >= newScore {
		t.Errorf("old skill score %v should be less than new skill score %v", oldScore, newScore)
	}
	if oldScore < 0.2 {
		t.Errorf("freshnessScore floor violated: %v < 0.2", oldScore)
	}
}

func TestFencedBlocks_CountsAndLanguages(t *testing.T) {
	body := []byte("```go\ncode\n```\n\ntext\n\n```python\ncode\n```\n")
	count, langs := fencedBlocks(body)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if !langs["go"] || !langs["python"] {
		t.Errorf("languages = %v, want go and python", langs)
	}
}
