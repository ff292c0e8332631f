package store

// schema is the durable layout (spec.md §6 "Persisted layout"): one
// SQLite database holding every canonical table plus an FTS5 virtual
// table that the spec describes as the lexical index's "virtual
// companion" — implemented here as exactly that, a companion table kept
// in sync with the skills table rather than a second standalone index.
const schema = `
CREATE TABLE IF NOT EXISTS sources (
	id                 TEXT PRIMARY KEY,
	kind               TEXT NOT NULL,
	identifier         TEXT NOT NULL,
	verified           INTEGER NOT NULL DEFAULT 0,
	default_trust      TEXT NOT NULL,
	last_sync_cursor   TEXT NOT NULL DEFAULT '',
	last_sync_at       TEXT,
	consecutive_fails  INTEGER NOT NULL DEFAULT 0,
	degraded           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS skills (
	id               TEXT PRIMARY KEY,
	author           TEXT NOT NULL,
	content_hash     TEXT NOT NULL,
	description      TEXT NOT NULL,
	tags             TEXT NOT NULL DEFAULT '',
	category         TEXT NOT NULL,
	trust_tier       TEXT NOT NULL,
	quality_score    REAL NOT NULL DEFAULT 0,
	risk_score       REAL NOT NULL DEFAULT 0,
	security_passed  INTEGER NOT NULL DEFAULT 0,
	source_id        TEXT NOT NULL REFERENCES sources(id),
	raw_body         BLOB NOT NULL,
	parsed_metadata  TEXT NOT NULL DEFAULT '{}',
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	last_scan_at        TEXT,
	last_scan_decision  TEXT NOT NULL DEFAULT ''
);

-- Secondary indexes required by spec.md §4.1: skills(author),
-- skills(trust_tier), skills(quality_score), skills(risk_score),
-- skills(security_passed, trust_tier). source_id and category are not
-- named by the spec but are exercised by every sync and filter path, so
-- they are kept alongside the required set.
CREATE INDEX IF NOT EXISTS idx_skills_source ON skills(source_id);
CREATE INDEX IF NOT EXISTS idx_skills_category ON skills(category);
CREATE INDEX IF NOT EXISTS idx_skills_author ON skills(author);
CREATE INDEX IF NOT EXISTS idx_skills_trust ON skills(trust_tier);
CREATE INDEX IF NOT EXISTS idx_skills_quality ON skills(quality_score);
CREATE INDEX IF NOT EXISTS idx_skills_risk ON skills(risk_score);
CREATE INDEX IF NOT EXISTS idx_skills_security_passed ON skills(security_passed);
CREATE INDEX IF NOT EXISTS idx_skills_security_trust ON skills(security_passed, trust_tier);

-- Standalone (non-contentless) FTS5 table: an earlier draft declared
-- content='', but a contentless table neither stores UNINDEXED column
-- values (skills_fts.id would read back NULL, breaking the join back to
-- skills) nor accepts a plain DELETE without contentless_delete=1. A
-- standalone table duplicates description/tags alongside the canonical
-- skills row, which is the price of the lexical index being a true
-- "virtual companion" rather than a reference into skills.
CREATE VIRTUAL TABLE IF NOT EXISTS skills_fts USING fts5(
	id UNINDEXED,
	description,
	tags
);

CREATE TABLE IF NOT EXISTS skill_versions (
	skill_id     TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	semver       TEXT NOT NULL DEFAULT '',
	recorded_at  TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (skill_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_versions_skill ON skill_versions(skill_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS scan_findings (
	fingerprint     TEXT PRIMARY KEY,
	skill_id        TEXT NOT NULL,
	content_hash    TEXT NOT NULL,
	rule_id         TEXT NOT NULL,
	category        TEXT NOT NULL,
	severity        TEXT NOT NULL,
	confidence      REAL NOT NULL,
	start_line      INTEGER NOT NULL,
	end_line        INTEGER NOT NULL,
	start_column    INTEGER NOT NULL,
	end_column      INTEGER NOT NULL,
	message         TEXT NOT NULL,
	suppressed      INTEGER NOT NULL DEFAULT 0,
	suppress_reason TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_findings_skill ON scan_findings(skill_id, content_hash);

CREATE TABLE IF NOT EXISTS quarantine_records (
	skill_id           TEXT NOT NULL,
	content_hash       TEXT NOT NULL,
	status             TEXT NOT NULL,
	reviewers          TEXT NOT NULL DEFAULT '',
	approvals          TEXT NOT NULL DEFAULT '{}',
	required_approvals INTEGER NOT NULL,
	reason             TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	PRIMARY KEY (skill_id, content_hash)
);

CREATE INDEX IF NOT EXISTS idx_quarantine_status ON quarantine_records(status);

CREATE TABLE IF NOT EXISTS cache_entries (
	keyspace   TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	generation INTEGER NOT NULL,
	expires_at TEXT NOT NULL,
	PRIMARY KEY (keyspace, key)
);

CREATE TABLE IF NOT EXISTS audit_events (
	id           TEXT PRIMARY KEY,
	timestamp    TEXT NOT NULL,
	actor        TEXT NOT NULL,
	action       TEXT NOT NULL,
	subject_type TEXT NOT NULL,
	subject_id   TEXT NOT NULL,
	before_json  TEXT NOT NULL DEFAULT 'null',
	after_json   TEXT NOT NULL DEFAULT 'null',
	severity     TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_events(subject_type, subject_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS skill_vectors (
	skill_id TEXT PRIMARY KEY,
	vector   BLOB NOT NULL
);
`
