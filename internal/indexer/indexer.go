// Package indexer implements the per-source sync engine (C7): the
// fetch → Parser → Scanner → Quality Scorer → Trust Classifier →
// (Quarantine) → Store commit → Cache invalidation pipeline, fanned out
// across sources with an errgroup concurrency cap. The fan-out shape —
// errgroup.WithContext plus g.SetLimit, per-item errors folded into
// diagnostics rather than aborting the batch — is adapted directly from
// the teacher's plugin.Host.InvokeAll, generalized from "invoke N plugins"
// to "sync N sources".
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nox-hq/skillforge/internal/audit"
	"github.com/nox-hq/skillforge/internal/bundle"
	"github.com/nox-hq/skillforge/internal/cache"
	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/quality"
	"github.com/nox-hq/skillforge/internal/quarantine"
	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/trust"
)

// RawItem is a single fetched, unparsed bundle from a Source.
type RawItem struct {
	Name       string // used only for stable ordering; the ID is derived after parsing
	Raw        []byte
	RepoMeta   skill.RepoMetadata
	LastActive time.Time
}

// Fetcher retrieves the current set of items from a Source. Concrete
// implementations (git host API client, local filesystem walker, webhook
// replay buffer) are wired in by the caller; this package only needs the
// interface, the way the teacher's plugin.Host only needs a *grpc.ClientConn.
type Fetcher interface {
	Fetch(ctx context.Context, src skill.Source) ([]RawItem, error)
}

// Store is the subset of internal/store.Store the indexer writes through.
type Store interface {
	PutSkill(ctx context.Context, sk *skill.Skill, v *skill.SkillVersion) error
	PutFindings(ctx context.Context, findings []scanner.Finding) error
	GetSource(ctx context.Context, id string) (*skill.Source, error)
	PutSource(ctx context.Context, src *skill.Source) error
	ListSources(ctx context.Context) ([]skill.Source, error)
	// ApprovedFindingFingerprints backs the baseline carry-forward check:
	// a finding matching one already approved out of quarantine on a prior
	// scan does not reopen quarantine review.
	ApprovedFindingFingerprints(ctx context.Context, id skill.ID) (map[string]bool, error)
	// HasVersion backs the at-most-once sync guarantee: an item whose
	// (skill_id, content_hash) is already recorded is skipped idempotently
	// rather than reprocessed.
	HasVersion(ctx context.Context, id skill.ID, contentHash string) (bool, error)
}

// Engine drives sync for one or many sources.
type Engine struct {
	store      Store
	fetchers   map[skill.SourceKind]Fetcher
	scanner    *scanner.Scanner
	quarantine *quarantine.Manager
	cache      *cache.Cache
	audit      audit.Sink
	cfg        config.IndexerConfig
	log        *slog.Logger
}

// Option configures an Engine, matching the teacher's functional-option
// constructor idiom.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// New constructs an Engine.
func New(store Store, fetchers map[skill.SourceKind]Fetcher, sc *scanner.Scanner, qm *quarantine.Manager, c *cache.Cache, sink audit.Sink, cfg config.IndexerConfig, opts ...Option) *Engine {
	e := &Engine{store: store, fetchers: fetchers, scanner: sc, quarantine: qm, cache: c, audit: sink, cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncResult summarizes one source's sync pass.
type SyncResult struct {
	SourceID      string
	ItemsSeen     int
	ItemsIndexed  int
	ItemsSkipped  int // already present at this (id, content_hash); not reprocessed
	ItemsFailed   int
	ItemErrors    []string
	Degraded      bool
}

// SyncAll syncs every known source concurrently, bounded by
// cfg.MaxConcurrentSources, mirroring plugin.Host.InvokeAll's
// errgroup.SetLimit fan-out. A single source's failure never aborts the
// others: it is folded into that source's SyncResult and, past the
// configured consecutive-failure threshold, marks the source degraded.
func (e *Engine) SyncAll(ctx context.Context) ([]SyncResult, error) {
	sources, err := e.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	results := make([]SyncResult, len(sources))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentSources)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			r, syncErr := e.syncOneWithBackoff(gCtx, src)
			results[i] = r
			if syncErr != nil {
				e.log.Warn("source sync failed", "source", src.ID, "error", syncErr)
			}
			return nil // per-source errors are non-fatal to the batch
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// syncOneWithBackoff retries SyncSource with exponential backoff and
// jitter on transient failure, up to the source's degraded threshold.
func (e *Engine) syncOneWithBackoff(ctx context.Context, src skill.Source) (SyncResult, error) {
	result, err := e.SyncSource(ctx, src)
	if err == nil {
		return result, nil
	}

	delay := e.cfg.BackoffBase
	for attempt := 1; attempt < e.cfg.ConsecutiveFailuresForDegraded; attempt++ {
		// Reload the source so the failure count persisted by the previous
		// attempt carries into this one.
		if latest, gerr := e.store.GetSource(ctx, src.ID); gerr == nil && latest != nil {
			src = *latest
		}
		jittered := applyJitter(delay, e.cfg.BackoffJitter)
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(jittered):
		}

		result, err = e.SyncSource(ctx, src)
		if err == nil {
			return result, nil
		}

		delay = time.Duration(float64(delay) * e.cfg.BackoffFactor)
		if delay > e.cfg.BackoffCap {
			delay = e.cfg.BackoffCap
		}
	}
	return result, err
}

func applyJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*2*delta-delta)
}

// SyncSource runs one fetch→parse→scan→score→classify→commit pass for a
// single source, processing items in stable lexicographic order so a sync
// aborted partway through is reproducible on retry.
func (e *Engine) SyncSource(ctx context.Context, src skill.Source) (SyncResult, error) {
	fetcher, ok := e.fetchers[src.Kind]
	if !ok {
		return SyncResult{SourceID: src.ID}, fmt.Errorf("no fetcher registered for source kind %q", src.Kind)
	}

	items, err := fetcher.Fetch(ctx, src)
	if err != nil {
		src.ConsecutiveFails++
		if src.ConsecutiveFails >= e.cfg.ConsecutiveFailuresForDegraded {
			src.Degraded = true
		}
		_ = e.store.PutSource(ctx, &src)
		return SyncResult{SourceID: src.ID, Degraded: src.Degraded}, fmt.Errorf("fetching from source %s: %w", src.ID, err)
	}

	return e.IndexItems(ctx, src, items)
}

// IndexItems runs the parse→scan→score→classify→commit pass over an
// already-fetched item set, bypassing the Fetcher lookup entirely. This
// is what index_local uses to ingest caller-supplied bundles that never
// came from a registered Fetcher.
func (e *Engine) IndexItems(ctx context.Context, src skill.Source, items []RawItem) (SyncResult, error) {
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	result := SyncResult{SourceID: src.ID, ItemsSeen: len(items)}
	for _, item := range items {
		skipped, err := e.indexOne(ctx, src, item)
		if err != nil {
			result.ItemsFailed++
			result.ItemErrors = append(result.ItemErrors, fmt.Sprintf("%s: %v", item.Name, err))
			ev := audit.NewEvent("system:indexer", "index.item_failed", "source", src.ID, audit.SeverityWarn)
			ev.Metadata = map[string]string{"item": item.Name, "error": err.Error()}
			_ = e.audit.Append(ctx, ev)
			continue
		}
		if skipped {
			result.ItemsSkipped++
			continue
		}
		result.ItemsIndexed++
	}

	src.ConsecutiveFails = 0
	src.Degraded = false
	src.LastSyncAt = time.Now().UTC()
	if err := e.store.PutSource(ctx, &src); err != nil {
		return result, fmt.Errorf("persisting source state: %w", err)
	}

	if result.ItemsIndexed > 0 {
		e.cache.Invalidate(cache.KeyspaceSearch)
		e.cache.Invalidate(cache.KeyspaceRecommend)
	}

	return result, nil
}

// indexOne processes a single fetched item, reporting skipped=true when the
// item's (skill_id, content_hash) is already recorded — the at-most-once
// guarantee spec.md §4.7 requires of a sync pass.
func (e *Engine) indexOne(ctx context.Context, src skill.Source, item RawItem) (skipped bool, err error) {
	parsed, err := bundle.Parse(item.Raw)
	if err != nil {
		return false, fmt.Errorf("parsing: %w", err)
	}

	id, err := skill.NewID(src.ID, parsed.Name)
	if err != nil {
		return false, fmt.Errorf("deriving skill id: %w", err)
	}

	exists, err := e.store.HasVersion(ctx, id, parsed.ContentHash)
	if err != nil {
		return false, fmt.Errorf("checking version existence: %w", err)
	}
	if exists {
		return true, nil
	}

	report := e.scanner.Scan(id, parsed.ContentHash, parsed.Body)
	if err := e.applyBaseline(ctx, id, &report); err != nil {
		return false, fmt.Errorf("checking finding baseline: %w", err)
	}
	// A finding the scanner still flags may already be baselined (approved
	// out of quarantine on a prior scan of unchanged content) or inline-
	// suppressed; once none of the remaining findings are actionable, the
	// skill reads as passing rather than staying pinned to the raw
	// pre-baseline decision forever with no quarantine record left to
	// approve it through.
	if report.Decision != scanner.DecisionPass && !needsQuarantine(report) {
		report.Decision = scanner.DecisionPass
	}

	now := time.Now().UTC()
	sig := quality.Signals{
		HasScriptsOrResources: false,
		SourceLastActivity:    item.LastActive,
		CreatedAt:             now,
		UpdatedAt:             now,
		Now:                   now,
	}
	qualityScore := quality.Score(parsed.Description, parsed.Body, sig)
	tier := trust.Classify(src, item.RepoMeta, report.Decision)

	sk := &skill.Skill{
		ID:             id,
		ContentHash:    parsed.ContentHash,
		Description:    parsed.Description,
		Category:       skill.Category(parsed.Metadata["category"]),
		TrustTier:      tier,
		QualityScore:   qualityScore,
		RiskScore:      report.RiskScore,
		SecurityPassed: report.Decision == scanner.DecisionPass,
		SourceID:       src.ID,
		RawBody:        parsed.Body,
		ParsedMetadata: skill.ParsedMetadata(parsed.Metadata),
		CreatedAt:        now,
		UpdatedAt:        now,
		LastScanAt:       now,
		LastScanDecision: string(report.Decision),
	}

	version := &skill.SkillVersion{
		SkillID:     id,
		ContentHash: parsed.ContentHash,
		RecordedAt:  now,
		Metadata:    skill.ParsedMetadata(parsed.Metadata),
	}

	if err := e.store.PutSkill(ctx, sk, version); err != nil {
		return false, fmt.Errorf("committing skill: %w", err)
	}
	if err := e.store.PutFindings(ctx, report.Findings); err != nil {
		return false, fmt.Errorf("committing findings: %w", err)
	}

	if report.Decision != scanner.DecisionPass && needsQuarantine(report) {
		if _, err := e.quarantine.Open(ctx, id, report, "system:indexer"); err != nil {
			return false, fmt.Errorf("opening quarantine record: %w", err)
		}
	}

	return false, nil
}

// applyBaseline marks findings in report whose fingerprint was already
// approved out of quarantine on a prior scan of id, adapted from the
// teacher's core/baseline.Diff fingerprint-carry-forward idea.
func (e *Engine) applyBaseline(ctx context.Context, id skill.ID, report *scanner.ScanReport) error {
	approved, err := e.store.ApprovedFindingFingerprints(ctx, id)
	if err != nil {
		return err
	}
	if len(approved) == 0 {
		return nil
	}
	for i := range report.Findings {
		if approved[report.Findings[i].Fingerprint] {
			report.Findings[i].Baselined = true
		}
	}
	return nil
}

// needsQuarantine reports whether report still warrants opening a
// quarantine record once suppressed and baselined findings are set aside:
// a finding already reviewed and approved on unchanged content should not
// force review fatigue on every subsequent re-scan.
func needsQuarantine(report scanner.ScanReport) bool {
	for _, f := range report.Findings {
		if !f.Suppressed && !f.Baselined {
			return true
		}
	}
	return false
}
