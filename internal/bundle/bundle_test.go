package bundle

import (
	"testing"

	"github.com/nox-hq/skillforge/internal/skillerr"
)

func TestParse_Valid(t *testing.T) {
	raw := []byte("---\nname: commit-formatter\ndescription: use when committing changes\n---\nDo the thing.\n")
	ps, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ps.Name != "commit-formatter" {
		t.Errorf("Name = %q, want commit-formatter", ps.Name)
	}
	if ps.ContentHash == "" {
		t.Error("expected non-empty ContentHash")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"empty", "", skillerr.ReasonEmpty},
		{"missing delimiter", "name: x\n", skillerr.ReasonMissingDelimiter},
		{"malformed header", "---\nnotakeyvalue\n---\nbody\n", skillerr.ReasonMalformedHeader},
		{"missing name", "---\ndescription: d\n---\nbody\n", skillerr.ReasonMissingRequired},
		{"missing description", "---\nname: x\n---\nbody\n", skillerr.ReasonMissingRequired},
		{"invalid identifier", "---\nname: Bad_Name!\ndescription: d\n---\nbody\n", skillerr.ReasonInvalidIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			pe, ok := err.(*skillerr.ParseError)
			if !ok {
				t.Fatalf("expected *skillerr.ParseError, got %T", err)
			}
			if pe.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", pe.Reason, tt.reason)
			}
		})
	}
}

// TestCanonicalize_StableAcrossHeaderOrderAndWhitespace exercises the
// hash-canonicalization property: two bundles differing only in header
// key order and trailing whitespace must hash identically.
func TestCanonicalize_StableAcrossHeaderOrderAndWhitespace(t *testing.T) {
	a := []byte("---\nname: x\ndescription: d\n---\nline one   \nline two\n")
	b := []byte("---\ndescription: d\nname: x\n---\nline one\nline two\n")

	pa, err := Parse(a)
	if err != nil {
		t.Fatalf("Parse(a): %v", err)
	}
	pb, err := Parse(b)
	if err != nil {
		t.Fatalf("Parse(b): %v", err)
	}

	if pa.ContentHash != pb.ContentHash {
		t.Errorf("ContentHash mismatch: %s != %s", pa.ContentHash, pb.ContentHash)
	}
}

func TestCanonicalize_DiffersOnBodyChange(t *testing.T) {
	a := []byte("---\nname: x\ndescription: d\n---\nbody one\n")
	b := []byte("---\nname: x\ndescription: d\n---\nbody two\n")

	pa, _ := Parse(a)
	pb, _ := Parse(b)

	if pa.ContentHash == pb.ContentHash {
		t.Error("expected different ContentHash for different bodies")
	}
}
