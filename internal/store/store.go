// Package store implements the durable repository (C1): the single
// SQLite-backed canonical store for every entity in spec.md §3, its FTS5
// lexical companion table, and a pure-Go vector sidecar rebuilt on open.
// The transaction-scoped, single-writer style is grounded in the
// teacher's registry.fileCache atomic-write discipline, generalized from
// a flat JSON cache file to a relational schema because the spec's data
// model needs joins and secondary indexes the teacher's registry never
// required.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nox-hq/skillforge/internal/audit"
	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/quarantine"
	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/skillerr"
	"github.com/nox-hq/skillforge/internal/store/vector"
)

// Store is the durable repository backing every other component. It
// satisfies audit.Sink and quarantine.Store directly so callers can wire
// one concrete value into every component that needs persistence.
type Store struct {
	db     *sql.DB
	log    *slog.Logger
	cfg    config.StoreConfig
	vecIdx *vector.Index
	// Degraded is set when the vector sidecar failed to rebuild at Open;
	// search falls back to lexical-only mode until the next successful
	// reopen (spec.md §4.8's "degraded boot" behavior).
	Degraded bool
}

// Option configures a Store at construction, mirroring the teacher's
// ServerOption/ClientOption functional-option idiom.
type Option func(*Store)

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens (creating if absent) the SQLite database at cfg.DSN,
// applies the schema, and rebuilds the vector sidecar by streaming every
// skill_vectors row. A vector rebuild failure does not fail Open: the
// Store comes up in degraded, lexical-only mode instead (spec.md's
// explicit preference for partial availability over total failure).
func Open(ctx context.Context, cfg config.StoreConfig, dim int, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxReaderConns)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	s := &Store{db: db, log: slog.Default(), cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	idx, err := rebuildVectorIndex(ctx, db, dim)
	if err != nil {
		s.log.Warn("vector sidecar rebuild failed, continuing in lexical-only mode", "error", err)
		s.Degraded = true
		s.vecIdx = vector.NewIndex(dim)
	} else {
		s.vecIdx = idx
	}

	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func rebuildVectorIndex(ctx context.Context, db *sql.DB, dim int) (*vector.Index, error) {
	idx := vector.NewIndex(dim)
	rows, err := db.QueryContext(ctx, `SELECT skill_id, vector FROM skill_vectors`)
	if err != nil {
		return nil, fmt.Errorf("querying skill_vectors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning skill_vectors row: %w", err)
		}
		vec, err := vector.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", id, err)
		}
		if err := idx.Add(id, vec); err != nil {
			return nil, fmt.Errorf("indexing vector for %s: %w", id, err)
		}
	}
	return idx, rows.Err()
}

// VectorIndex exposes the in-memory ANN sidecar for the search component.
func (s *Store) VectorIndex() *vector.Index { return s.vecIdx }

// DB exposes the underlying connection pool for read-only query paths
// (search's FTS5 lookups) that don't need the rest of Store's surface.
func (s *Store) DB() *sql.DB { return s.db }

// --- Skill CRUD ---

// PutSkill upserts a Skill, its FTS companion row, and (if v is non-nil)
// a SkillVersion record, all within a single transaction.
func (s *Store) PutSkill(ctx context.Context, sk *skill.Skill, v *skill.SkillVersion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	metaJSON, err := json.Marshal(sk.ParsedMetadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	tags := strings.Join(sk.Tags, ",")

	_, err = tx.ExecContext(ctx, `
		INSERT INTO skills (id, author, content_hash, description, tags, category, trust_tier,
			quality_score, risk_score, security_passed, source_id, raw_body,
			parsed_metadata, created_at, updated_at, last_scan_at, last_scan_decision)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			author=excluded.author, content_hash=excluded.content_hash, description=excluded.description,
			tags=excluded.tags, category=excluded.category, trust_tier=excluded.trust_tier,
			quality_score=excluded.quality_score, risk_score=excluded.risk_score,
			security_passed=excluded.security_passed, source_id=excluded.source_id,
			raw_body=excluded.raw_body, parsed_metadata=excluded.parsed_metadata,
			updated_at=excluded.updated_at, last_scan_at=excluded.last_scan_at,
			last_scan_decision=excluded.last_scan_decision`,
		string(sk.ID), sk.ID.Author(), sk.ContentHash, sk.Description, tags, string(sk.Category), string(sk.TrustTier),
		sk.QualityScore, sk.RiskScore, sk.SecurityPassed, sk.SourceID, sk.RawBody,
		string(metaJSON), sk.CreatedAt.UTC().Format(time.RFC3339Nano), sk.UpdatedAt.UTC().Format(time.RFC3339Nano),
		nullableTime(sk.LastScanAt), sk.LastScanDecision)
	if err != nil {
		return fmt.Errorf("upserting skill: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM skills_fts WHERE id = ?`, string(sk.ID)); err != nil {
		return fmt.Errorf("clearing fts row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO skills_fts (id, description, tags) VALUES (?,?,?)`,
		string(sk.ID), sk.Description, tags); err != nil {
		return fmt.Errorf("inserting fts row: %w", err)
	}

	if v != nil {
		vMetaJSON, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling version metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO skill_versions (skill_id, content_hash, semver, recorded_at, metadata)
			VALUES (?,?,?,?,?)
			ON CONFLICT(skill_id, content_hash) DO NOTHING`,
			string(v.SkillID), v.ContentHash, v.SemVer, v.RecordedAt.UTC().Format(time.RFC3339Nano), string(vMetaJSON)); err != nil {
			return fmt.Errorf("inserting skill version: %w", err)
		}
		if err := s.pruneVersions(ctx, tx, v.SkillID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// HasVersion reports whether a SkillVersion for this exact (id, contentHash)
// pair has already been recorded, backing the indexer's at-most-once sync
// guarantee (spec.md §4.7).
func (s *Store) HasVersion(ctx context.Context, id skill.ID, contentHash string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM skill_versions WHERE skill_id = ? AND content_hash = ? LIMIT 1`,
		string(id), contentHash).Scan(&exists)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("checking version existence for %s: %w", id, err)
	default:
		return true, nil
	}
}

func (s *Store) pruneVersions(ctx context.Context, tx *sql.Tx, id skill.ID) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM skill_versions
		WHERE skill_id = ? AND content_hash NOT IN (
			SELECT content_hash FROM skill_versions
			WHERE skill_id = ? ORDER BY recorded_at DESC LIMIT ?
		)`, string(id), string(id), s.cfg.VersionHistoryCap)
	if err != nil {
		return fmt.Errorf("pruning skill versions: %w", err)
	}
	return nil
}

// GetSkill fetches a Skill by ID.
func (s *Store) GetSkill(ctx context.Context, id skill.ID) (*skill.Skill, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content_hash, description, tags, category, trust_tier, quality_score,
			risk_score, security_passed, source_id, raw_body, parsed_metadata,
			created_at, updated_at, last_scan_at, last_scan_decision
		FROM skills WHERE id = ?`, string(id))
	sk, err := scanSkill(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, skillerr.ErrNotFound
		}
		return nil, fmt.Errorf("fetching skill %s: %w", id, err)
	}
	return sk, nil
}

func scanSkill(row *sql.Row) (*skill.Skill, error) {
	var (
		idStr, tags, category, trustTier, sourceID, metaJSON string
		createdAt, updatedAt                                 string
		lastScanAt                                           sql.NullString
		lastScanDecision                                     string
		sk                                                    skill.Skill
	)
	if err := row.Scan(&idStr, &sk.ContentHash, &sk.Description, &tags, &category, &trustTier,
		&sk.QualityScore, &sk.RiskScore, &sk.SecurityPassed, &sourceID, &sk.RawBody, &metaJSON,
		&createdAt, &updatedAt, &lastScanAt, &lastScanDecision); err != nil {
		return nil, err
	}
	sk.LastScanDecision = lastScanDecision
	sk.ID = skill.ID(idStr)
	sk.Category = skill.Category(category)
	sk.TrustTier = skill.TrustTier(trustTier)
	sk.SourceID = sourceID
	if tags != "" {
		sk.Tags = strings.Split(tags, ",")
	}
	sk.ParsedMetadata = make(skill.ParsedMetadata)
	_ = json.Unmarshal([]byte(metaJSON), &sk.ParsedMetadata)
	sk.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sk.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if lastScanAt.Valid {
		sk.LastScanAt, _ = time.Parse(time.RFC3339Nano, lastScanAt.String)
	}
	return &sk, nil
}

// --- Source CRUD ---

func (s *Store) PutSource(ctx context.Context, src *skill.Source) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (id, kind, identifier, verified, default_trust, last_sync_cursor,
			last_sync_at, consecutive_fails, degraded)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, identifier=excluded.identifier, verified=excluded.verified,
			default_trust=excluded.default_trust, last_sync_cursor=excluded.last_sync_cursor,
			last_sync_at=excluded.last_sync_at, consecutive_fails=excluded.consecutive_fails,
			degraded=excluded.degraded`,
		src.ID, string(src.Kind), src.Identifier, src.Verified, string(src.DefaultTrust),
		src.LastSyncCursor, nullableTime(src.LastSyncAt), src.ConsecutiveFails, src.Degraded)
	if err != nil {
		return fmt.Errorf("upserting source: %w", err)
	}
	return nil
}

func (s *Store) GetSource(ctx context.Context, id string) (*skill.Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, kind, identifier, verified, default_trust, last_sync_cursor,
			last_sync_at, consecutive_fails, degraded
		FROM sources WHERE id = ?`, id)
	var (
		src                 skill.Source
		kind, defaultTrust  string
		lastSyncAt          sql.NullString
	)
	if err := row.Scan(&src.ID, &kind, &src.Identifier, &src.Verified, &defaultTrust,
		&src.LastSyncCursor, &lastSyncAt, &src.ConsecutiveFails, &src.Degraded); err != nil {
		if err == sql.ErrNoRows {
			return nil, skillerr.ErrNotFound
		}
		return nil, fmt.Errorf("fetching source %s: %w", id, err)
	}
	src.Kind = skill.SourceKind(kind)
	src.DefaultTrust = skill.TrustTier(defaultTrust)
	if lastSyncAt.Valid {
		src.LastSyncAt, _ = time.Parse(time.RFC3339Nano, lastSyncAt.String)
	}
	return &src, nil
}

func (s *Store) ListSources(ctx context.Context) ([]skill.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	out := make([]skill.Source, 0, len(ids))
	for _, id := range ids {
		src, err := s.GetSource(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, nil
}

// --- Finding persistence ---

func (s *Store) PutFindings(ctx context.Context, findings []scanner.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, f := range findings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scan_findings (fingerprint, skill_id, content_hash, rule_id, category,
				severity, confidence, start_line, end_line, start_column, end_column, message,
				suppressed, suppress_reason)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
			ON CONFLICT(fingerprint) DO NOTHING`,
			f.Fingerprint, string(f.SkillID), f.ContentHash, f.RuleID, string(f.Category),
			string(f.Severity), float64(f.Confidence), f.Locator.StartLine, f.Locator.EndLine,
			f.Locator.StartColumn, f.Locator.EndColumn, f.Message, f.Suppressed, f.SuppressReason)
		if err != nil {
			return fmt.Errorf("inserting finding %s: %w", f.Fingerprint, err)
		}
	}
	return tx.Commit()
}

// ApprovedFindingFingerprints returns the fingerprints of every finding
// ever recorded against id whose quarantine record (at the matching
// content_hash) reached StatusApproved, regardless of content hash — the
// baseline-carry-forward lookup a re-scan consults so an already-reviewed
// finding does not reopen quarantine on unchanged content (SPEC_FULL.md §4).
func (s *Store) ApprovedFindingFingerprints(ctx context.Context, id skill.ID) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT f.fingerprint
		FROM scan_findings f
		JOIN quarantine_records q ON q.skill_id = f.skill_id AND q.content_hash = f.content_hash
		WHERE f.skill_id = ? AND q.status = 'approved'`, string(id))
	if err != nil {
		return nil, fmt.Errorf("querying approved finding fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scanning fingerprint: %w", err)
		}
		out[fp] = true
	}
	return out, rows.Err()
}

// --- Vector persistence ---

// PutVector upserts a skill's embedding, both durably and into the
// in-memory sidecar so freshly-indexed skills are searchable immediately.
func (s *Store) PutVector(ctx context.Context, id skill.ID, vec []float32) error {
	encoded := vector.Encode(vec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_vectors (skill_id, vector) VALUES (?, ?)
		ON CONFLICT(skill_id) DO UPDATE SET vector = excluded.vector`,
		string(id), encoded)
	if err != nil {
		return fmt.Errorf("upserting vector for %s: %w", id, err)
	}
	return s.vecIdx.Add(string(id), vec)
}

// SetSecurityPassed flips a skill's security_passed flag, used by the
// Quarantine Manager when a record reaches StatusApproved: the reviewers'
// sign-off resolves the finding(s) that blocked the original scan verdict,
// so the skill becomes visible to search and eligible for install again
// (spec.md §3's security_passed "mirrors no unresolved Critical/High
// findings" — approval is how a finding becomes resolved).
func (s *Store) SetSecurityPassed(ctx context.Context, id skill.ID, passed bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE skills SET security_passed = ?, updated_at = ? WHERE id = ?`,
		passed, time.Now().UTC().Format(time.RFC3339Nano), string(id))
	if err != nil {
		return fmt.Errorf("updating security_passed for %s: %w", id, err)
	}
	return nil
}

var _ audit.Sink = (*Store)(nil)
var _ quarantine.Store = (*QuarantineStore)(nil)
var _ quarantine.SkillGate = (*Store)(nil)

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
