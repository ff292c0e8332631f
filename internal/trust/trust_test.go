package trust

import (
	"testing"

	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/skill"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		src      skill.Source
		repo     skill.RepoMetadata
		decision scanner.Decision
		want     skill.TrustTier
	}{
		{"local fs always local", skill.Source{Kind: skill.SourceLocalFS}, skill.RepoMetadata{}, scanner.DecisionPass, skill.TrustLocal},
		{"non-pass decision is unknown", skill.Source{Kind: skill.SourceGitHostRepo}, skill.RepoMetadata{}, scanner.DecisionBlock, skill.TrustUnknown},
		{"verified source", skill.Source{Kind: skill.SourceGitHostOrg, Verified: true}, skill.RepoMetadata{}, scanner.DecisionPass, skill.TrustVerified},
		{"registry source", skill.Source{Kind: skill.SourceRegistry}, skill.RepoMetadata{}, scanner.DecisionPass, skill.TrustCurated},
		{"repo with license and readme", skill.Source{Kind: skill.SourceGitHostRepo}, skill.RepoMetadata{HasLicense: true, HasReadme: true}, scanner.DecisionPass, skill.TrustCommunity},
		{"repo missing readme falls to experimental", skill.Source{Kind: skill.SourceGitHostRepo}, skill.RepoMetadata{HasLicense: true}, scanner.DecisionPass, skill.TrustExperimental},
		{"webhook ingest defaults experimental", skill.Source{Kind: skill.SourceWebhookIngest}, skill.RepoMetadata{}, scanner.DecisionPass, skill.TrustExperimental},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.src, tt.repo, tt.decision)
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}
