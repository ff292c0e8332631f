// Package search implements the hybrid search service (C9): lexical
// (SQLite FTS5 BM25) and semantic (the vector sidecar) candidate sets
// fused with configurable weights, plus quality and recency terms, tied
// off deterministically. Degraded mode (lexical-only, when the vector
// sidecar failed to rebuild) is surfaced on the response rather than
// failing the request — the same "annotate, don't fail" posture the
// teacher's core/report layer uses for partial scan results.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nox-hq/skillforge/internal/collab"
	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/skillerr"
	"github.com/nox-hq/skillforge/internal/store/vector"
)

// Filter narrows a search to a subset of the catalog. It is a conjunction
// of predicates over trust_tier, category, min_quality, security_passed
// (always enforced, see lexicalCandidates/hydrate), and author (spec.md
// §4.5); SourceID is an additional predicate the spec doesn't name but
// every sync and filter path already exercises.
type Filter struct {
	Category    skill.Category
	TrustTier   skill.TrustTier
	SourceID    string
	MinQuality  float64
	Author      string
}

// Query is a single search request.
type Query struct {
	Text   string
	Filter Filter
	K      int
}

// Result is a single ranked hit.
type Result struct {
	Skill         skill.Skill
	LexicalScore  float64
	SemanticScore float64
	FusedScore    float64
}

// Response is the full result set plus degraded-mode annotation.
type Response struct {
	Results  []Result
	Degraded bool
}

// DB is the subset of *sql.DB the search service needs for FTS5 lookups
// and skill row hydration.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Service runs hybrid search over the durable FTS5 index and the vector
// sidecar.
type Service struct {
	db       DB
	vecIdx   *vector.Index
	embedder collab.Embedder
	degraded bool
	cfg      config.SearchConfig
}

// New constructs a Service. degraded should reflect Store.Degraded at
// construction time (true when the vector sidecar failed to rebuild).
func New(db DB, vecIdx *vector.Index, embedder collab.Embedder, degraded bool, cfg config.SearchConfig) *Service {
	return &Service{db: db, vecIdx: vecIdx, embedder: embedder, degraded: degraded, cfg: cfg}
}

// Search runs the hybrid pipeline: fetch KLexical lexical candidates via
// FTS5 BM25, fetch KSemantic semantic candidates via the vector sidecar
// (skipped entirely in degraded mode), fuse by weighted sum, and return
// the top K.
func (s *Service) Search(ctx context.Context, q Query) (*Response, error) {
	if len(q.Text) > s.cfg.MaxQueryLen {
		return nil, fmt.Errorf("%w: query exceeds max length %d", skillerr.ErrInvalidQuery, s.cfg.MaxQueryLen)
	}
	k := q.K
	if k <= 0 || k > s.cfg.MaxK {
		k = s.cfg.MaxK
	}

	lexical, err := s.lexicalCandidates(ctx, q.Text, q.Filter, s.cfg.KLexical)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	semantic := map[string]float64{}
	degraded := s.degraded
	if !degraded && s.embedder != nil {
		vec, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			degraded = true
		} else {
			hits, err := s.vecIdx.Search(vec, s.cfg.KSemantic)
			if err != nil {
				degraded = true
			} else {
				for _, h := range hits {
					semantic[h.ID] = float64(h.Score)
				}
			}
		}
	}

	merged := map[string]*Result{}
	for id, score := range lexical {
		merged[id] = &Result{LexicalScore: score}
		_ = id
	}
	for id, score := range semantic {
		r, ok := merged[id]
		if !ok {
			r = &Result{}
			merged[id] = r
		}
		r.SemanticScore = score
	}

	ids := make([]string, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}

	skills, err := s.hydrate(ctx, ids, q.Filter)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	results := make([]Result, 0, len(skills))
	for _, sk := range skills {
		r := merged[string(sk.ID)]
		r.Skill = sk
		r.FusedScore = s.cfg.WeightLexical*r.LexicalScore +
			s.cfg.WeightSemantic*r.SemanticScore +
			s.cfg.WeightQuality*(sk.QualityScore/100) +
			s.cfg.WeightRecency*recencyScore(sk.UpdatedAt, now)
		results = append(results, *r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		if results[i].Skill.QualityScore != results[j].Skill.QualityScore {
			return results[i].Skill.QualityScore > results[j].Skill.QualityScore
		}
		return results[i].Skill.ID < results[j].Skill.ID
	})
	if len(results) > k {
		results = results[:k]
	}

	return &Response{Results: results, Degraded: degraded}, nil
}

func recencyScore(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	ageDays := now.Sub(updatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	const halfLifeDays = 90.0
	return math.Pow(0.5, ageDays/halfLifeDays)
}

// lexicalCandidates runs the FTS5 MATCH query and returns bm25-derived
// scores normalized to [0,1] per candidate, applying q's filter predicates
// at the SQL layer so degraded-mode responses still honor filters.
func (s *Service) lexicalCandidates(ctx context.Context, text string, f Filter, limit int) (map[string]float64, error) {
	if text == "" {
		return map[string]float64{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT skills_fts.id, bm25(skills_fts) AS rank
		FROM skills_fts
		JOIN skills ON skills.id = skills_fts.id
		WHERE skills_fts MATCH ?
			AND skills.security_passed = 1
			AND (? = '' OR skills.category = ?)
			AND (? = '' OR skills.trust_tier = ?)
			AND (? = '' OR skills.source_id = ?)
			AND skills.quality_score >= ?
			AND (? = '' OR skills.author = ?)
		ORDER BY rank LIMIT ?`,
		text, string(f.Category), string(f.Category), string(f.TrustTier), string(f.TrustTier),
		f.SourceID, f.SourceID, f.MinQuality, f.Author, f.Author, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]float64{}
	var minRank, maxRank float64
	first := true
	type scored struct {
		id   string
		rank float64
	}
	var raw []scored
	for rows.Next() {
		var id string
		var rank float64
		if err := rows.Scan(&id, &rank); err != nil {
			return nil, err
		}
		raw = append(raw, scored{id, rank})
		if first || rank < minRank {
			minRank = rank
		}
		if first || rank > maxRank {
			maxRank = rank
		}
		first = false
	}
	spread := maxRank - minRank
	for _, r := range raw {
		// bm25() returns lower-is-better; invert and normalize to [0,1].
		if spread == 0 {
			out[r.id] = 1
		} else {
			out[r.id] = 1 - (r.rank-minRank)/spread
		}
	}
	return out, rows.Err()
}

// hydrate loads the full skill rows for a candidate id set and re-applies
// every Filter predicate at the SQL layer. This is required, not redundant
// with lexicalCandidates: a candidate can arrive here purely from the
// semantic (vector) side, having never passed through the lexical query's
// WHERE clause at all — filters must still apply after fusion (spec.md
// §4.5).
func (s *Service) hydrate(ctx context.Context, ids []string, f Filter) ([]skill.Skill, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]any, 0, len(ids)+6)
	query := `SELECT id, content_hash, description, tags, category, trust_tier, quality_score,
		risk_score, security_passed, source_id, raw_body, parsed_metadata, created_at, updated_at,
		last_scan_at FROM skills
		WHERE security_passed = 1
			AND (? = '' OR category = ?)
			AND (? = '' OR trust_tier = ?)
			AND (? = '' OR source_id = ?)
			AND quality_score >= ?
			AND (? = '' OR author = ?)
			AND id IN (`
	placeholders = append(placeholders,
		string(f.Category), string(f.Category), string(f.TrustTier), string(f.TrustTier),
		f.SourceID, f.SourceID, f.MinQuality, f.Author, f.Author)
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders = append(placeholders, id)
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("hydrating search results: %w", err)
	}
	defer rows.Close()

	var out []skill.Skill
	for rows.Next() {
		sk, err := scanSkillRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}
