// Package core wires every component into the aggregate Engine and
// exposes the eight external operations (spec.md §6): search, recommend,
// get_skill, validate_bundle, authorize_install, index_local,
// review_quarantine, sync_source. The aggregate-root-over-components
// shape mirrors the teacher's plugin.Host, which is likewise the single
// entry point a caller talks to while every safety/registry/diagnostic
// concern lives in its own package underneath it.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nox-hq/skillforge/internal/audit"
	"github.com/nox-hq/skillforge/internal/badge"
	"github.com/nox-hq/skillforge/internal/bundle"
	"github.com/nox-hq/skillforge/internal/cache"
	"github.com/nox-hq/skillforge/internal/collab"
	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/indexer"
	"github.com/nox-hq/skillforge/internal/install"
	"github.com/nox-hq/skillforge/internal/quarantine"
	"github.com/nox-hq/skillforge/internal/recommend"
	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/scanner/rules"
	"github.com/nox-hq/skillforge/internal/search"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/skillerr"
	"github.com/nox-hq/skillforge/internal/store"
)

// Engine is the aggregate root wiring every component listed in
// SPEC_FULL.md's module retention table into the eight public operations.
type Engine struct {
	cfg        config.CoreConfig
	store      *store.Store
	cache      *cache.Cache
	scanner    *scanner.Scanner
	quarantine *quarantine.Manager
	search     *search.Service
	recommend  *recommend.Service
	install    *install.Gate
	indexer    *indexer.Engine
	audit      audit.Sink
	log        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// New wires every component together from a shared CoreConfig, an opened
// Store, an opened Cache, an Embedder, and a set of per-source Fetchers. It
// fails fast if the embedder's dimension does not match CoreConfig.Search
// .VectorDim (SPEC_FULL.md §5's embedding-dimension Open Question: `d` is a
// config parameter validated against the collaborator at startup rather
// than silently truncating vectors).
func New(cfg config.CoreConfig, st *store.Store, c *cache.Cache, embedder collab.Embedder, fetchers map[skill.SourceKind]indexer.Fetcher, opts ...Option) (*Engine, error) {
	if embedder != nil && embedder.Dimension() != cfg.Search.VectorDim {
		return nil, skillerr.NewInternal(fmt.Errorf("embedder dimension %d does not match CoreConfig.Search.VectorDim %d", embedder.Dimension(), cfg.Search.VectorDim))
	}

	ruleSet := rules.NewBuiltinRuleSet()
	sc := scanner.New(ruleSet, cfg.Scanner)
	qm := quarantine.New(st.Quarantine(), st, st, cfg.Quarantine)
	searchSvc := search.New(st.DB(), st.VectorIndex(), embedder, st.Degraded, cfg.Search)
	recommendSvc := recommend.New(searchSvc, cfg.Recommend)
	installGate := install.New(st, st.Quarantine(), sc, st)
	idx := indexer.New(st, fetchers, sc, qm, c, st, cfg.Indexer)

	e := &Engine{
		cfg:        cfg,
		store:      st,
		cache:      c,
		scanner:    sc,
		quarantine: qm,
		search:     searchSvc,
		recommend:  recommendSvc,
		install:    installGate,
		indexer:    idx,
		audit:      st,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search implements the `search` operation.
func (e *Engine) Search(ctx context.Context, q search.Query) (*search.Response, error) {
	return e.search.Search(ctx, q)
}

// Recommend implements the `recommend` operation.
func (e *Engine) Recommend(ctx context.Context, cc collab.CodebaseContext, installedTags map[string][]string, limit int) (*recommend.Response, error) {
	if len(cc.Languages) == 0 && len(cc.Frameworks) == 0 && len(cc.Dependencies) == 0 {
		return nil, skillerr.ErrInvalidContext
	}
	return e.recommend.Recommend(ctx, cc, installedTags, limit)
}

// SkillDetail is the get_skill response shape.
type SkillDetail struct {
	Skill      skill.Skill
	Findings   []scanner.Finding
	Quarantine *quarantine.Record
	Badge      *badge.Result
}

// GetSkill implements the `get_skill` operation, hiding quarantined
// skills from non-privileged callers per spec.md §4.6's invariant.
func (e *Engine) GetSkill(ctx context.Context, id skill.ID, caller collab.Caller) (*SkillDetail, error) {
	sk, err := e.store.GetSkill(ctx, id)
	if err != nil {
		return nil, err
	}

	rec, err := e.store.Quarantine().LatestQuarantine(ctx, id)
	if err != nil && err != skillerr.ErrNotFound {
		return nil, err
	}
	if rec != nil && !rec.Visible() && !caller.CanSeeQuarantined() {
		return nil, skillerr.ErrQuarantined
	}

	return &SkillDetail{Skill: *sk, Quarantine: rec, Badge: badge.QualityBadge(string(sk.ID), sk.QualityScore)}, nil
}

// ValidateReport is the validate_bundle response shape.
type ValidateReport struct {
	Parsed *bundle.ParsedSkill
	Scan   scanner.ScanReport
}

// ValidateBundle implements the `validate_bundle` operation: parse and
// scan without committing anything to the store, so a caller can preview
// a bundle's outcome before submitting it to a source.
func (e *Engine) ValidateBundle(ctx context.Context, raw []byte) (*ValidateReport, error) {
	parsed, err := bundle.Parse(raw)
	if err != nil {
		return nil, err
	}
	placeholder, _ := skill.NewID("local", parsed.Name)
	report := e.scanner.Scan(placeholder, parsed.ContentHash, parsed.Body)
	return &ValidateReport{Parsed: parsed, Scan: report}, nil
}

// AuthorizeInstall implements the `authorize_install` operation.
func (e *Engine) AuthorizeInstall(ctx context.Context, id skill.ID, caller collab.Caller) (*install.Manifest, error) {
	return e.install.Authorize(ctx, id, caller.Subject)
}

// IngestSummary is the index_local response shape.
type IngestSummary struct {
	ItemsSeen    int
	ItemsIndexed int
	ItemsFailed  int
	Errors       []string
}

// IndexLocal implements the `index_local` operation: sync a local-fs
// source built from the given in-memory bundles, without touching disk.
func (e *Engine) IndexLocal(ctx context.Context, sourceID string, bundles [][]byte) (*IngestSummary, error) {
	src := skill.Source{ID: sourceID, Kind: skill.SourceLocalFS, Identifier: sourceID, LastSyncAt: time.Now().UTC()}
	if err := e.store.PutSource(ctx, &src); err != nil {
		return nil, fmt.Errorf("registering local source: %w", err)
	}

	items := make([]indexer.RawItem, len(bundles))
	for i, b := range bundles {
		items[i] = indexer.RawItem{Name: fmt.Sprintf("%d", i), Raw: b, LastActive: time.Now().UTC()}
	}

	result, err := e.indexer.IndexItems(ctx, src, items)
	if err != nil {
		return &IngestSummary{Errors: []string{err.Error()}}, err
	}
	return &IngestSummary{
		ItemsSeen:    result.ItemsSeen,
		ItemsIndexed: result.ItemsIndexed,
		ItemsFailed:  result.ItemsFailed,
		Errors:       result.ItemErrors,
	}, nil
}

// ReviewQuarantine implements the `review_quarantine` operation,
// dispatching to Approve or Reject based on decision. A pending record is
// assigned to the acting reviewer first: the first caller to act on a
// record is the one who picks it up, matching spec.md §4.6's rule that
// moving to under-review requires (and records) reviewer assignment.
func (e *Engine) ReviewQuarantine(ctx context.Context, id skill.ID, contentHash, decision string, caller collab.Caller) (*quarantine.Record, error) {
	rec, err := e.quarantine.Get(ctx, id, contentHash)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.Status == quarantine.StatusPending {
		if _, err := e.quarantine.Assign(ctx, id, contentHash, caller.Subject, caller.Subject); err != nil {
			return nil, err
		}
	}

	role := quarantine.ReviewerRole{CanApprove: caller.CanApprove(), CanReject: caller.CanReject()}
	switch decision {
	case "approve":
		return e.quarantine.Approve(ctx, id, contentHash, caller.Subject, role)
	case "reject":
		return e.quarantine.Reject(ctx, id, contentHash, caller.Subject, "", role)
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", skillerr.ErrInvalidTransition, decision)
	}
}

// SyncSource implements the `sync_source` operation for a single source.
func (e *Engine) SyncSource(ctx context.Context, sourceID string) (*indexer.SyncResult, error) {
	src, err := e.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	result, err := e.indexer.SyncSource(ctx, *src)
	if err != nil {
		return &result, fmt.Errorf("%w: %v", skillerr.ErrSourceUnavailable, err)
	}
	return &result, nil
}
