// Package collab defines the external collaborator interfaces spec.md §1
// names but places out of this module's scope: the embedding model
// runtime, the caller's codebase analyzer, and the caller's auth/session
// layer. Each is expressed as a narrow interface, matching how the
// teacher's plugin.Host keeps third-party plugin processes behind a thin
// Go interface rather than importing their implementations directly.
package collab

import "context"

// Embedder produces a fixed-dimension dense vector for text. The concrete
// implementation (a hosted embedding API, a local model server) is an
// external collaborator; this module only depends on the interface.
type Embedder interface {
	// Embed returns a vector of length Dimension for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension reports the fixed vector length this Embedder produces.
	Dimension() int
}

// CodebaseContext is the caller-supplied snapshot of the project a
// recommendation request is scoped to, sourced from the caller's own
// code analyzer (spec.md's "external collaborator #2").
type CodebaseContext struct {
	Languages    []string
	Frameworks   []string
	Dependencies []string
	FilePatterns []string
	InstalledIDs []string // skill IDs already installed in this project
}

// Role is the caller's privilege level, as established by the caller's
// own auth/session layer (spec.md's "external collaborator #3"). This
// module never authenticates a caller itself; it only consumes the role
// a caller asserts, the way the teacher's server.Server trusts the role
// attached by upstream middleware.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// Caller identifies who is making a request and what they're allowed to
// do with quarantine records and installs.
type Caller struct {
	Subject string
	Role    Role
}

// CanApprove reports whether this caller may approve a quarantine record.
func (c Caller) CanApprove() bool {
	return c.Role == RoleReviewer || c.Role == RoleAdmin
}

// CanReject mirrors CanApprove: reviewers and admins may reject.
func (c Caller) CanReject() bool {
	return c.Role == RoleReviewer || c.Role == RoleAdmin
}

// CanSeeQuarantined reports whether non-terminal / rejected skills should
// still be visible to this caller (privileged review UIs), per spec.md
// §4.6's "invisible to non-privileged search and installation" rule.
func (c Caller) CanSeeQuarantined() bool {
	return c.Role == RoleReviewer || c.Role == RoleAdmin
}
