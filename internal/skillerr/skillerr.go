// Package skillerr defines the typed error taxonomy shared across the
// catalog engine. Callers use errors.Is/errors.As against these values
// instead of matching on message strings, matching the error-handling
// policy in the engine's design notes.
package skillerr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors forming the taxonomy's base cases. Wrap with fmt.Errorf
// and %w to attach context; do not format these into new strings that lose
// errors.Is compatibility.
var (
	ErrNotFound         = errors.New("not found")
	ErrQuarantined      = errors.New("quarantined")
	ErrPolicyDenied     = errors.New("policy denied")
	ErrInvalidTransition = errors.New("invalid quarantine transition")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrOverloaded        = errors.New("overloaded")
	ErrDeadlineExceeded  = errors.New("deadline exceeded")
	ErrIntegrityMismatch = errors.New("content hash integrity mismatch")
	ErrInvalidQuery      = errors.New("invalid query")
	ErrInvalidContext    = errors.New("invalid codebase context")
	ErrPermissionDenied  = errors.New("permission denied")
)

// ParseError is returned by the Parser (C2) for a malformed skill bundle.
// Reason is one of the fixed ParseError codes below.
type ParseError struct {
	Reason  string
	Detail  string
}

// Parser error reason codes, matching spec.md §4.2 exactly.
const (
	ReasonMissingDelimiter = "MissingDelimiter"
	ReasonMalformedHeader  = "MalformedHeader"
	ReasonMissingRequired  = "MissingRequired"
	ReasonFieldTooLong     = "FieldTooLong"
	ReasonInvalidIdentifier = "InvalidIdentifier"
	ReasonEmpty            = "Empty"
)

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("parse error: %s", e.Reason)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Reason, e.Detail)
}

// ScanBlocked is returned when an install-time re-scan yields a blocking
// verdict; it carries the findings that caused the block so callers can
// surface them without a second scan round-trip.
type ScanBlocked struct {
	Findings []string // rule IDs, kept minimal to avoid import cycles
}

func (e *ScanBlocked) Error() string {
	return fmt.Sprintf("scan blocked: %d blocking finding(s)", len(e.Findings))
}

// DegradedService annotates a response as degraded rather than failing the
// request outright. It is informational, not a propagated error — callers
// attach it to a response field, they do not return it from a function
// that otherwise succeeds.
type DegradedService struct {
	Reason string
}

func (e *DegradedService) Error() string {
	return fmt.Sprintf("degraded: %s", e.Reason)
}

// Internal wraps an invariant violation. Every Internal error carries a
// correlation id so operators can cross-reference the accompanying audit
// event of severity "critical".
type Internal struct {
	CorrelationID string
	Cause         error
}

// NewInternal builds an Internal error with a fresh correlation id.
func NewInternal(cause error) *Internal {
	return &Internal{CorrelationID: uuid.NewString(), Cause: cause}
}

func (e *Internal) Error() string {
	return fmt.Sprintf("internal error [%s]: %v", e.CorrelationID, e.Cause)
}

func (e *Internal) Unwrap() error { return e.Cause }
