// Package config defines CoreConfig, the single immutable configuration
// value constructed at startup and threaded explicitly through every
// component constructor. No package in this module keeps process-wide
// mutable configuration state; see the design notes in SPEC_FULL.md.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ScannerConfig tunes the multi-category static analyzer (C3).
type ScannerConfig struct {
	FencedCodeMultiplier float64 `yaml:"fenced_code_multiplier"`
	TableMultiplier      float64 `yaml:"table_multiplier"`
	HighWeightBlockThreshold   float64 `yaml:"high_weight_block_threshold"`
	MediumHighReviewThreshold  float64 `yaml:"medium_high_review_threshold"`
	CriticalBlockConfidence    float64 `yaml:"critical_block_confidence"`
	SuppressedWeightMultiplier float64 `yaml:"suppressed_weight_multiplier"`
	MaxUserPatternLength       int     `yaml:"max_user_pattern_length"`
}

// QuarantineConfig tunes the approval workflow (C6).
type QuarantineConfig struct {
	RequiredApprovalsCritical int           `yaml:"required_approvals_critical"`
	RequiredApprovalsDefault  int           `yaml:"required_approvals_default"`
	TTL                       time.Duration `yaml:"ttl"`
}

// CacheConfig tunes the tiered cache (C8).
type CacheConfig struct {
	L1MaxEntries int           `yaml:"l1_max_entries"`
	L1MaxBytes   int64         `yaml:"l1_max_bytes"`
	SearchTTL    time.Duration `yaml:"search_ttl"`
	SkillDetailTTL time.Duration `yaml:"skill_detail_ttl"`
	RecommendTTL time.Duration `yaml:"recommend_ttl"`
	CompareTTL   time.Duration `yaml:"compare_ttl"`
}

// SearchConfig tunes hybrid search fusion (C9).
type SearchConfig struct {
	VectorDim    int     `yaml:"vector_dim"`
	KLexical     int     `yaml:"k_lexical"`
	KSemantic    int     `yaml:"k_semantic"`
	WeightLexical  float64 `yaml:"weight_lexical"`
	WeightSemantic float64 `yaml:"weight_semantic"`
	WeightQuality  float64 `yaml:"weight_quality"`
	WeightRecency  float64 `yaml:"weight_recency"`
	MaxK         int     `yaml:"max_k"`
	MaxQueryLen  int     `yaml:"max_query_len"`
	TargetRecallAtK50 float64 `yaml:"target_recall_at_k50"`
}

// RecommendConfig tunes overlap detection and boosting (C10).
type RecommendConfig struct {
	OverlapJaccardThreshold float64 `yaml:"overlap_jaccard_threshold"`
	FrameworkBoost          float64 `yaml:"framework_boost"`
}

// IndexerConfig tunes per-source sync behavior (C7).
type IndexerConfig struct {
	MaxConcurrentSources int           `yaml:"max_concurrent_sources"`
	QueueCapacity        int           `yaml:"queue_capacity"`
	BackoffBase          time.Duration `yaml:"backoff_base"`
	BackoffFactor        float64       `yaml:"backoff_factor"`
	BackoffCap           time.Duration `yaml:"backoff_cap"`
	BackoffJitter        float64       `yaml:"backoff_jitter"`
	ConsecutiveFailuresForDegraded int `yaml:"consecutive_failures_for_degraded"`
}

// StoreConfig tunes the durable backing store (C1).
type StoreConfig struct {
	DSN               string `yaml:"dsn"`
	MaxReaderConns     int    `yaml:"max_reader_conns"`
	VersionHistoryCap  int    `yaml:"version_history_cap"`
}

// AdmissionConfig tunes backpressure behavior (§5).
type AdmissionConfig struct {
	InteractiveQueueWait time.Duration `yaml:"interactive_queue_wait"`
}

// CoreConfig is the top-level immutable configuration tree. Build it once
// with Default() or Load(), then pass it by value/pointer to every
// component constructor. Never mutate a CoreConfig after construction.
type CoreConfig struct {
	Scanner    ScannerConfig    `yaml:"scanner"`
	Quarantine QuarantineConfig `yaml:"quarantine"`
	Cache      CacheConfig      `yaml:"cache"`
	Search     SearchConfig     `yaml:"search"`
	Recommend  RecommendConfig  `yaml:"recommend"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Store      StoreConfig      `yaml:"store"`
	Admission  AdmissionConfig  `yaml:"admission"`
}

// Default returns the config tree populated with the thresholds and
// defaults spelled out in spec.md.
func Default() CoreConfig {
	return CoreConfig{
		Scanner: ScannerConfig{
			FencedCodeMultiplier:       0.4,
			TableMultiplier:            0.6,
			HighWeightBlockThreshold:   40,
			MediumHighReviewThreshold:  25,
			CriticalBlockConfidence:    0.6,
			SuppressedWeightMultiplier: 0.5,
			MaxUserPatternLength:       200,
		},
		Quarantine: QuarantineConfig{
			RequiredApprovalsCritical: 2,
			RequiredApprovalsDefault:  1,
			TTL:                       30 * 24 * time.Hour,
		},
		Cache: CacheConfig{
			L1MaxEntries:   4096,
			L1MaxBytes:     64 << 20,
			SearchTTL:      15 * time.Minute,
			SkillDetailTTL: 60 * time.Minute,
			RecommendTTL:   15 * time.Minute,
			CompareTTL:     60 * time.Minute,
		},
		Search: SearchConfig{
			VectorDim:         384,
			KLexical:          200,
			KSemantic:         200,
			WeightLexical:     0.4,
			WeightSemantic:    0.4,
			WeightQuality:     0.15,
			WeightRecency:     0.05,
			MaxK:              100,
			MaxQueryLen:       500,
			TargetRecallAtK50: 0.9,
		},
		Recommend: RecommendConfig{
			OverlapJaccardThreshold: 0.6,
			FrameworkBoost:          0.1,
		},
		Indexer: IndexerConfig{
			MaxConcurrentSources:           4,
			QueueCapacity:                  64,
			BackoffBase:                    1 * time.Second,
			BackoffFactor:                   2,
			BackoffCap:                      5 * time.Minute,
			BackoffJitter:                   0.2,
			ConsecutiveFailuresForDegraded: 10,
		},
		Store: StoreConfig{
			DSN:              "file:skillforge.db?_pragma=journal_mode(WAL)",
			MaxReaderConns:    16,
			VersionHistoryCap: 50,
		},
		Admission: AdmissionConfig{
			InteractiveQueueWait: 2 * time.Second,
		},
	}
}

// Load reads YAML overrides from path on top of Default(). A missing file
// is not an error; it simply yields the defaults.
func Load(path string) (CoreConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
