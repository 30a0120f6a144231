package auth

import (
	"context"
	"time"
)

// RoleGrant describes one grant or revoke of a role on a subject.
type RoleGrant struct {
	ActorID  string
	UserID   string
	RoleName string
	Reason   string
}

// Store is the persistence port for the permission graph. Mutations are
// transactional: a grant or revoke and its audit record commit atomically or
// not at all.
type Store interface {
	// CreateUser inserts the user and grants defaultRole, with its audit
	// record, in one transaction; a failure leaves no partial account.
	// Duplicate email yields ErrConflict.
	CreateUser(ctx context.Context, email, passwordHash, defaultRole, reason string) (User, error)
	FindUser(ctx context.Context, id string) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, limit int) ([]User, error)
	SetUserStatus(ctx context.Context, userID, status string) error
	RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error
	RecordLoginFailure(ctx context.Context, userID string) error

	// GrantRole is idempotent on membership state but appends one audit
	// record per call. Unknown subject or role yields ErrNotFound.
	GrantRole(ctx context.Context, g RoleGrant) error
	// RevokeRole yields ErrNotFound if the subject does not hold the role,
	// and appends no audit record in that case.
	RevokeRole(ctx context.Context, g RoleGrant) error
	// RolesForUser returns directly assigned roles only.
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
	// EffectivePermissions resolves the union of permissions over directly
	// assigned roles plus all roles transitively reachable via parent→child
	// hierarchy edges, deduplicated by key. It always reads current state.
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)

	// AddHierarchyEdge declares that parent additionally grants child's
	// permissions. Self-edges and edges that would create a cycle yield
	// ErrInvariant.
	AddHierarchyEdge(ctx context.Context, parentRole, childRole string) (HierarchyEdge, error)

	EnsurePermissions(ctx context.Context, perms []Permission) error
	ListAuditRecords(ctx context.Context, limit int) ([]AuditRecord, error)
}
