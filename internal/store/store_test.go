package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nox-hq/skillforge/internal/audit"
	"github.com/nox-hq/skillforge/internal/config"
	"github.com/nox-hq/skillforge/internal/quarantine"
	"github.com/nox-hq/skillforge/internal/scanner"
	"github.com/nox-hq/skillforge/internal/skill"
	"github.com/nox-hq/skillforge/internal/skillerr"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "skillforge.db") + "?_pragma=journal_mode(WAL)"
	cfg := config.Default().Store
	cfg.DSN = dsn
	s, err := Open(context.Background(), cfg, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSkill(id skill.ID) (*skill.Skill, *skill.SkillVersion) {
	now := time.Now().UTC().Truncate(time.Second)
	sk := &skill.Skill{
		ID:             id,
		ContentHash:    "abc123",
		Description:    "formats commit messages",
		Tags:           []string{"git", "formatting"},
		Category:       "git",
		TrustTier:      skill.TrustCommunity,
		QualityScore:   72,
		RiskScore:      5,
		SecurityPassed: true,
		SourceID:       "alice",
		RawBody:        []byte("body"),
		ParsedMetadata: skill.ParsedMetadata{"license": "MIT"},
		CreatedAt:      now,
		UpdatedAt:      now,
		LastScanAt:     now,
	}
	v := &skill.SkillVersion{SkillID: id, ContentHash: "abc123", RecordedAt: now, Metadata: sk.ParsedMetadata}
	return sk, v
}

func TestPutGetSkill_RoundTrips(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "commit-formatter")
	sk, v := sampleSkill(id)

	if err := s.PutSkill(context.Background(), sk, v); err != nil {
		t.Fatalf("PutSkill: %v", err)
	}
	got, err := s.GetSkill(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSkill: %v", err)
	}
	if got.Description != sk.Description || got.ContentHash != sk.ContentHash {
		t.Errorf("got %+v, want description/contenthash from %+v", got, sk)
	}
	if len(got.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 entries", got.Tags)
	}
	if got.ParsedMetadata["license"] != "MIT" {
		t.Errorf("ParsedMetadata[license] = %q, want MIT", got.ParsedMetadata["license"])
	}
}

func TestHasVersion(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "commit-formatter")
	sk, v := sampleSkill(id)
	if err := s.PutSkill(context.Background(), sk, v); err != nil {
		t.Fatalf("PutSkill: %v", err)
	}

	exists, err := s.HasVersion(context.Background(), id, v.ContentHash)
	if err != nil {
		t.Fatalf("HasVersion: %v", err)
	}
	if !exists {
		t.Error("expected HasVersion to report true for a recorded (id, content_hash)")
	}

	exists, err = s.HasVersion(context.Background(), id, "some-other-hash")
	if err != nil {
		t.Fatalf("HasVersion: %v", err)
	}
	if exists {
		t.Error("expected HasVersion to report false for an unrecorded content hash")
	}
}

func TestGetSkill_MissingReturnsErrNotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetSkill(context.Background(), skill.ID("nobody/nothing"))
	if err != skillerr.ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPutSkill_UpsertOverwritesFields(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "commit-formatter")
	sk, v := sampleSkill(id)
	if err := s.PutSkill(context.Background(), sk, v); err != nil {
		t.Fatalf("PutSkill: %v", err)
	}

	sk.Description = "a new and improved description"
	sk.QualityScore = 90
	if err := s.PutSkill(context.Background(), sk, nil); err != nil {
		t.Fatalf("PutSkill (update): %v", err)
	}

	got, err := s.GetSkill(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSkill: %v", err)
	}
	if got.Description != "a new and improved description" || got.QualityScore != 90 {
		t.Errorf("got %+v, want updated fields", got)
	}
}

func TestPutGetSource_RoundTrips(t *testing.T) {
	s := testStore(t)
	src := &skill.Source{ID: "alice", Kind: skill.SourceLocalFS, Identifier: "/tmp/skills", DefaultTrust: skill.TrustCommunity}
	if err := s.PutSource(context.Background(), src); err != nil {
		t.Fatalf("PutSource: %v", err)
	}
	got, err := s.GetSource(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.Identifier != src.Identifier || got.Kind != src.Kind {
		t.Errorf("got %+v, want %+v", got, src)
	}
}

func TestListSources_ReturnsAllInStableOrder(t *testing.T) {
	s := testStore(t)
	for _, id := range []string{"zed", "alice", "mid"} {
		if err := s.PutSource(context.Background(), &skill.Source{ID: id, Kind: skill.SourceLocalFS, DefaultTrust: skill.TrustCommunity}); err != nil {
			t.Fatalf("PutSource(%s): %v", id, err)
		}
	}
	srcs, err := s.ListSources(context.Background())
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(srcs) != 3 {
		t.Fatalf("len = %d, want 3", len(srcs))
	}
	if srcs[0].ID != "alice" || srcs[2].ID != "zed" {
		t.Errorf("order = %v, want alphabetical", srcs)
	}
}

func TestPutFindings_DeduplicatesByFingerprint(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "commit-formatter")
	f := scanner.Finding{
		Fingerprint: "fp-1",
		SkillID:     id,
		ContentHash: "abc123",
		RuleID:      "SEC-001",
		Category:    scanner.CategorySuspiciousCode,
		Severity:    scanner.SeverityHigh,
		Confidence:  1,
		Message:     "suspicious pattern",
	}
	if err := s.PutFindings(context.Background(), []scanner.Finding{f, f}); err != nil {
		t.Fatalf("PutFindings: %v", err)
	}

	approved, err := s.ApprovedFindingFingerprints(context.Background(), id)
	if err != nil {
		t.Fatalf("ApprovedFindingFingerprints: %v", err)
	}
	if len(approved) != 0 {
		t.Errorf("expected no approved fingerprints before any quarantine approval, got %v", approved)
	}
}

func TestApprovedFindingFingerprints_OnlyReturnsApprovedQuarantine(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "sketchy")
	f := scanner.Finding{
		Fingerprint: "fp-approved",
		SkillID:     id,
		ContentHash: "hash-1",
		RuleID:      "SEC-002",
		Category:    scanner.CategorySuspiciousCode,
		Severity:    scanner.SeverityCritical,
		Confidence:  1,
		Message:     "critical pattern",
	}
	if err := s.PutFindings(context.Background(), []scanner.Finding{f}); err != nil {
		t.Fatalf("PutFindings: %v", err)
	}

	now := time.Now().UTC()
	rec := &quarantine.Record{
		SkillID: id, ContentHash: "hash-1", Status: quarantine.StatusApproved,
		Approvals: map[string]bool{"bob": true, "carol": true}, RequiredApprovals: 2,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.Quarantine().Put(context.Background(), rec); err != nil {
		t.Fatalf("Quarantine().Put: %v", err)
	}

	approved, err := s.ApprovedFindingFingerprints(context.Background(), id)
	if err != nil {
		t.Fatalf("ApprovedFindingFingerprints: %v", err)
	}
	if !approved["fp-approved"] {
		t.Errorf("expected fp-approved to be present, got %v", approved)
	}
}

func TestPutVector_IndexesForSearch(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "commit-formatter")
	vec := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	if err := s.PutVector(context.Background(), id, vec); err != nil {
		t.Fatalf("PutVector: %v", err)
	}

	results, err := s.VectorIndex().Search(vec, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != string(id) {
		t.Errorf("Search results = %v, want [%s]", results, id)
	}
}

func TestOpen_RebuildsVectorIndexFromPersistedVectors(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "skillforge.db") + "?_pragma=journal_mode(WAL)"
	cfg := config.Default().Store
	cfg.DSN = dsn

	s1, err := Open(context.Background(), cfg, 8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, _ := skill.NewID("alice", "commit-formatter")
	vec := []float32{0, 1, 0, 0, 0, 0, 0, 0}
	if err := s1.PutVector(context.Background(), id, vec); err != nil {
		t.Fatalf("PutVector: %v", err)
	}
	s1.Close()

	s2, err := Open(context.Background(), cfg, 8)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if s2.Degraded {
		t.Fatal("expected a clean reopen to not be degraded")
	}
	results, err := s2.VectorIndex().Search(vec, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != string(id) {
		t.Errorf("expected vector rebuilt from persisted skill_vectors row, got %v", results)
	}
}

func TestAuditAppendQuery_RoundTrips(t *testing.T) {
	s := testStore(t)
	ev := audit.NewEvent("alice", "skill.indexed", "skill", "alice/commit-formatter", audit.SeverityInfo)
	if err := s.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append: %v", err)
	}
	events, err := s.Query(context.Background(), "skill", "alice/commit-formatter")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 || events[0].Action != "skill.indexed" {
		t.Errorf("events = %+v, want one skill.indexed event", events)
	}
}

func TestQuarantinePutGet_RoundTrips(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "sketchy")
	now := time.Now().UTC()
	rec := &quarantine.Record{
		SkillID: id, ContentHash: "hash-2", Status: quarantine.StatusUnderReview,
		Reviewers: []string{"bob"}, Approvals: map[string]bool{}, RequiredApprovals: 1,
		Reason: "suspicious shell command", CreatedAt: now, UpdatedAt: now,
	}
	if err := s.Quarantine().Put(context.Background(), rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Quarantine().Get(context.Background(), id, "hash-2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Status != quarantine.StatusUnderReview || got.Reason != rec.Reason {
		t.Errorf("got %+v, want %+v", got, rec)
	}
}

func TestLatestQuarantine_ReturnsMostRecentlyUpdated(t *testing.T) {
	s := testStore(t)
	id, _ := skill.NewID("alice", "sketchy")
	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()

	if err := s.Quarantine().Put(context.Background(), &quarantine.Record{
		SkillID: id, ContentHash: "hash-old", Status: quarantine.StatusRejected,
		Approvals: map[string]bool{}, RequiredApprovals: 1, CreatedAt: older, UpdatedAt: older,
	}); err != nil {
		t.Fatalf("Put old: %v", err)
	}
	if err := s.Quarantine().Put(context.Background(), &quarantine.Record{
		SkillID: id, ContentHash: "hash-new", Status: quarantine.StatusUnderReview,
		Approvals: map[string]bool{}, RequiredApprovals: 1, CreatedAt: newer, UpdatedAt: newer,
	}); err != nil {
		t.Fatalf("Put new: %v", err)
	}

	latest, err := s.Quarantine().LatestQuarantine(context.Background(), id)
	if err != nil {
		t.Fatalf("LatestQuarantine: %v", err)
	}
	if latest.ContentHash != "hash-new" {
		t.Errorf("ContentHash = %q, want hash-new", latest.ContentHash)
	}
}
