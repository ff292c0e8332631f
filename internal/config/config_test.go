package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_SearchWeightsSumToOne(t *testing.T) {
	cfg := Default()
	s := cfg.Search
	sum := s.WeightLexical + s.WeightSemantic + s.WeightQuality + s.WeightRecency
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("search fusion weights sum to %v, want 1.0", sum)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.MaxK != Default().Search.MaxK {
		t.Errorf("Load() with missing file should equal Default()")
	}
}

func TestLoad_YAMLOverridesApplyOnTopOfDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := "search:\n  max_k: 25\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Search.MaxK != 25 {
		t.Errorf("Search.MaxK = %d, want 25 (overridden)", cfg.Search.MaxK)
	}
	if cfg.Quarantine.RequiredApprovalsDefault != Default().Quarantine.RequiredApprovalsDefault {
		t.Error("unrelated fields should retain their default values")
	}
}
