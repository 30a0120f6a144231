package auth

import "time"

// User is an authenticatable subject. Users are soft-deactivated via Status
// rather than deleted while audit records reference them.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	Status              string     `json:"status"`
	Verified            bool       `json:"is_verified"`
	MFAEnabled          bool       `json:"mfa_enabled"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Role is a named bucket of permissions.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an atomic named capability. Permissions are only ever granted
// through role membership, never directly to a user.
type Permission struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleAssignment links a user to a role. Membership is a set; insertion order
// is irrelevant.
type RoleAssignment struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HierarchyEdge declares that the parent role additionally grants everything
// the child role grants. The relation must stay acyclic; edge inserts are
// rejected if they would close a cycle.
type HierarchyEdge struct {
	ParentRoleID string    `json:"parent_role_id"`
	ChildRoleID  string    `json:"child_role_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Audit actions.
const (
	AuditActionGrant  = "grant"
	AuditActionRevoke = "revoke"
)

// AuditRecord captures one role grant or revoke. Records are append-only and
// never amended or deleted.
type AuditRecord struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	Action     string    `json:"action"`
	SubjectID  string    `json:"subject_id"`
	RoleID     string    `json:"role_id"`
	RoleName   string    `json:"role_name"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// TokenPair bundles freshly issued credentials.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
