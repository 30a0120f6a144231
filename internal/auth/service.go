// Package auth implements the access-control core: credential verification,
// token lifecycle, the subject/role/permission graph and request-time
// authorization.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service combines the credential verifier, the token codec and the
// permission graph into the high level operations the HTTP layer consumes.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source, for tests.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the Service.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	s := &Service{store: store, codec: codec, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureBuiltins makes sure the permission catalog exists.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.EnsurePermissions(ctx, BuiltinPermissions)
}

// Register creates a user and grants the default customer role. Duplicate
// emails yield ErrConflict.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return User{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	// User creation and the default grant commit atomically; a failed
	// registration never leaves a roleless account behind.
	return s.store.CreateUser(ctx, email, hash, RoleCustomer, "registration")
}

// GetUser returns a single user by id.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.FindUser(ctx, userID)
}

// ListUsers returns the most recently created users.
func (s *Service) ListUsers(ctx context.Context, limit int) ([]User, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListUsers(ctx, limit)
}

// SetUserStatus activates or disables an account. A disabled user fails
// authentication on their next request even if their token is still valid.
func (s *Service) SetUserStatus(ctx context.Context, userID, status string) (User, error) {
	userID = strings.TrimSpace(userID)
	status = strings.TrimSpace(strings.ToLower(status))
	if userID == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if status != UserStatusActive && status != UserStatusDisabled {
		return User{}, fmt.Errorf("%w: status must be %q or %q", ErrInvalidInput, UserStatusActive, UserStatusDisabled)
	}
	if err := s.store.SetUserStatus(ctx, userID, status); err != nil {
		return User{}, err
	}
	return s.store.FindUser(ctx, userID)
}

// Login verifies credentials and issues a token pair. Every failure mode
// collapses into ErrUnauthenticated so responses cannot be used as an oracle.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, Principal, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, Principal{}, ErrUnauthenticated
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Principal{}, ErrUnauthenticated
		}
		return TokenPair{}, Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if user.Status != UserStatusActive {
		return TokenPair{}, Principal{}, ErrUnauthenticated
	}
	if !VerifyPassword(user.PasswordHash, password) {
		_ = s.store.RecordLoginFailure(ctx, user.ID)
		return TokenPair{}, Principal{}, ErrUnauthenticated
	}
	if err := s.store.RecordLoginSuccess(ctx, user.ID, s.now().UTC()); err != nil {
		return TokenPair{}, Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}

	access, accessExp, err := s.codec.IssueAccessToken(user.Email, principal.Roles, permissionKeys(principal))
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	refresh, refreshExp, err := s.codec.IssueRefreshToken(user.Email)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, principal, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. Roles and
// permissions are re-resolved from the graph, never taken from the refresh
// token's claims (it has none), so role changes propagate within one refresh
// cycle at most.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, err := s.codec.DecodeRefresh(refreshToken)
	if err != nil {
		return "", time.Time{}, ErrUnauthenticated
	}
	user, err := s.store.FindUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, ErrUnauthenticated
		}
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if user.Status != UserStatusActive {
		return "", time.Time{}, ErrUnauthenticated
	}
	principal, err := s.resolvePrincipal(ctx, user)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.codec.IssueAccessToken(user.Email, principal.Roles, permissionKeys(principal))
}

// Authenticate validates an access token and returns a principal with
// permissions resolved from current graph state. A token whose subject no
// longer exists or is disabled fails as unauthenticated, not as a server
// error; storage failures stay distinguishable as ErrUnavailable.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}
	user, err := s.store.FindUserByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if user.Status != UserStatusActive {
		return Principal{}, ErrUnauthenticated
	}
	return s.resolvePrincipal(ctx, user)
}

// AssignRole grants a role to a subject on behalf of the actor, with the
// audit record committed in the same transaction as the membership change.
func (s *Service) AssignRole(ctx context.Context, actor Principal, userID, roleName, reason string) error {
	userID = strings.TrimSpace(userID)
	roleName = strings.TrimSpace(strings.ToLower(roleName))
	if userID == "" || roleName == "" {
		return fmt.Errorf("%w: user id and role name are required", ErrInvalidInput)
	}
	return s.store.GrantRole(ctx, RoleGrant{
		ActorID:  actor.User.ID,
		UserID:   userID,
		RoleName: roleName,
		Reason:   strings.TrimSpace(reason),
	})
}

// RemoveRole revokes a role from a subject. Revoking a role the subject does
// not hold yields ErrNotFound and leaves no audit record.
func (s *Service) RemoveRole(ctx context.Context, actor Principal, userID, roleName, reason string) error {
	userID = strings.TrimSpace(userID)
	roleName = strings.TrimSpace(strings.ToLower(roleName))
	if userID == "" || roleName == "" {
		return fmt.Errorf("%w: user id and role name are required", ErrInvalidInput)
	}
	return s.store.RevokeRole(ctx, RoleGrant{
		ActorID:  actor.User.ID,
		UserID:   userID,
		RoleName: roleName,
		Reason:   strings.TrimSpace(reason),
	})
}

// AddRoleChild declares that parent additionally grants child's permissions.
// The edge is rejected with ErrInvariant if it would create a cycle.
func (s *Service) AddRoleChild(ctx context.Context, parentRole, childRole string) (HierarchyEdge, error) {
	parentRole = strings.TrimSpace(strings.ToLower(parentRole))
	childRole = strings.TrimSpace(strings.ToLower(childRole))
	if parentRole == "" || childRole == "" {
		return HierarchyEdge{}, fmt.Errorf("%w: parent and child role names are required", ErrInvalidInput)
	}
	return s.store.AddHierarchyEdge(ctx, parentRole, childRole)
}

// AuditTrail returns the most recent audit records.
func (s *Service) AuditTrail(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.ListAuditRecords(ctx, limit)
}

func (s *Service) resolvePrincipal(ctx context.Context, user User) (Principal, error) {
	roles, err := s.store.RolesForUser(ctx, user.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	perms, err := s.store.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewPrincipal(user, roles, perms), nil
}

func permissionKeys(p Principal) []string {
	keys := make([]string, 0, len(p.Permissions))
	for k := range p.Permissions {
		keys = append(keys, k)
	}
	return keys
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
