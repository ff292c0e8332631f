// Package trust implements the Trust Classifier (C5): a pure mapping from
// (Source, ScanReport) to a TrustTier, adapted from the teacher's
// registry/trust package — there, TrustLevel graded signature provenance
// for OCI plugin artifacts; here, the same "no I/O, no time, no randomness"
// discipline grades provenance for skill bundles (spec.md §4.5, tested
// property §8.3 "Trust purity").
package trust

import (
	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/skill"
)

// Classify assigns a TrustTier from source provenance and scanner verdict.
// It performs no I/O and consults no ambient state — callers supply every
// input it needs, including repo metadata for the community-tier rule.
func Classify(src skill.Source, repo skill.RepoMetadata, decision scanner.Decision) skill.TrustTier {
	if src.Kind == skill.SourceLocalFS {
		return skill.TrustLocal
	}

	if decision != scanner.DecisionPass {
		return skill.TrustUnknown
	}

	if src.Verified {
		return skill.TrustVerified
	}

	if src.Kind == skill.SourceRegistry {
		return skill.TrustCurated
	}

	if src.Kind == skill.SourceGitHostRepo && repo.HasLicense && repo.HasReadme {
		return skill.TrustCommunity
	}

	return skill.TrustExperimental
}
