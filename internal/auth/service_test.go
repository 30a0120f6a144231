package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// memStore is an in-memory Store with the same contracts as the SQL
// implementation: transactional-looking grant/revoke plus audit, recursive
// hierarchy resolution, fresh reads.
type memStore struct {
	users     map[string]User // by id
	roles     map[string]Role // by name
	userRoles map[string]map[string]bool
	rolePerms map[string][]string         // role name -> permission keys
	children  map[string]map[string]bool  // parent role name -> child role names
	audit     []AuditRecord
	failWith  error // when set, every call fails with it
	nextID    int
}

func newMemStore() *memStore {
	m := &memStore{
		users:     make(map[string]User),
		roles:     make(map[string]Role),
		userRoles: make(map[string]map[string]bool),
		rolePerms: make(map[string][]string),
		children:  make(map[string]map[string]bool),
	}
	for name, perms := range DefaultRolePermissions {
		m.roles[name] = Role{ID: "role_" + name, Name: name}
		m.rolePerms[name] = perms
	}
	return m
}

func (m *memStore) id() string {
	m.nextID++
	return fmt.Sprintf("id-%d", m.nextID)
}

// CreateUser mirrors the SQL store's contract: the user row, the default
// role membership and its audit record appear together or not at all.
func (m *memStore) CreateUser(_ context.Context, email, passwordHash, defaultRole, reason string) (User, error) {
	if m.failWith != nil {
		return User{}, m.failWith
	}
	for _, u := range m.users {
		if u.Email == email {
			return User{}, ErrConflict
		}
	}
	role, ok := m.roles[defaultRole]
	if !ok {
		return User{}, ErrNotFound
	}
	u := User{ID: m.id(), Email: email, PasswordHash: passwordHash, Status: UserStatusActive, CreatedAt: time.Now()}
	m.users[u.ID] = u
	m.userRoles[u.ID] = map[string]bool{defaultRole: true}
	m.audit = append(m.audit, AuditRecord{
		ID: m.id(), ActorID: u.ID, Action: AuditActionGrant,
		SubjectID: u.ID, RoleID: role.ID, RoleName: defaultRole,
		Reason: reason, OccurredAt: time.Now(),
	})
	return u, nil
}

func (m *memStore) ListUsers(_ context.Context, limit int) ([]User, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var users []User
	for _, u := range m.users {
		users = append(users, u)
		if len(users) == limit {
			break
		}
	}
	return users, nil
}

func (m *memStore) FindUser(_ context.Context, id string) (User, error) {
	if m.failWith != nil {
		return User{}, m.failWith
	}
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memStore) FindUserByEmail(_ context.Context, email string) (User, error) {
	if m.failWith != nil {
		return User{}, m.failWith
	}
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (m *memStore) SetUserStatus(_ context.Context, userID, status string) error {
	if m.failWith != nil {
		return m.failWith
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	m.users[userID] = u
	return nil
}

func (m *memStore) RecordLoginSuccess(_ context.Context, userID string, at time.Time) error {
	if m.failWith != nil {
		return m.failWith
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.LastLogin = &at
	u.FailedLoginAttempts = 0
	m.users[userID] = u
	return nil
}

func (m *memStore) RecordLoginFailure(_ context.Context, userID string) error {
	if m.failWith != nil {
		return m.failWith
	}
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedLoginAttempts++
	m.users[userID] = u
	return nil
}

func (m *memStore) GrantRole(_ context.Context, g RoleGrant) error {
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.users[g.UserID]; !ok {
		return ErrNotFound
	}
	role, ok := m.roles[g.RoleName]
	if !ok {
		return ErrNotFound
	}
	if m.userRoles[g.UserID] == nil {
		m.userRoles[g.UserID] = make(map[string]bool)
	}
	m.userRoles[g.UserID][g.RoleName] = true
	m.audit = append(m.audit, AuditRecord{
		ID: m.id(), ActorID: g.ActorID, Action: AuditActionGrant,
		SubjectID: g.UserID, RoleID: role.ID, RoleName: g.RoleName,
		Reason: g.Reason, OccurredAt: time.Now(),
	})
	return nil
}

func (m *memStore) RevokeRole(_ context.Context, g RoleGrant) error {
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.users[g.UserID]; !ok {
		return ErrNotFound
	}
	role, ok := m.roles[g.RoleName]
	if !ok {
		return ErrNotFound
	}
	if !m.userRoles[g.UserID][g.RoleName] {
		return ErrNotFound
	}
	delete(m.userRoles[g.UserID], g.RoleName)
	m.audit = append(m.audit, AuditRecord{
		ID: m.id(), ActorID: g.ActorID, Action: AuditActionRevoke,
		SubjectID: g.UserID, RoleID: role.ID, RoleName: g.RoleName,
		Reason: g.Reason, OccurredAt: time.Now(),
	})
	return nil
}

func (m *memStore) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	var roles []Role
	for name := range m.userRoles[userID] {
		roles = append(roles, m.roles[name])
	}
	return roles, nil
}

func (m *memStore) EffectivePermissions(_ context.Context, userID string) ([]string, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	reachable := make(map[string]bool)
	var walk func(name string)
	walk = func(name string) {
		if reachable[name] {
			return
		}
		reachable[name] = true
		for child := range m.children[name] {
			walk(child)
		}
	}
	for name := range m.userRoles[userID] {
		walk(name)
	}
	set := make(map[string]bool)
	for name := range reachable {
		for _, key := range m.rolePerms[name] {
			set[key] = true
		}
	}
	var out []string
	for key := range set {
		out = append(out, key)
	}
	return out, nil
}

func (m *memStore) AddHierarchyEdge(_ context.Context, parentRole, childRole string) (HierarchyEdge, error) {
	if m.failWith != nil {
		return HierarchyEdge{}, m.failWith
	}
	parent, ok := m.roles[parentRole]
	if !ok {
		return HierarchyEdge{}, ErrNotFound
	}
	child, ok := m.roles[childRole]
	if !ok {
		return HierarchyEdge{}, ErrNotFound
	}
	if parentRole == childRole {
		return HierarchyEdge{}, ErrInvariant
	}
	// reject if parent is reachable from child
	seen := make(map[string]bool)
	var reach func(name string) bool
	reach = func(name string) bool {
		if name == parentRole {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		for c := range m.children[name] {
			if reach(c) {
				return true
			}
		}
		return false
	}
	if reach(childRole) {
		return HierarchyEdge{}, ErrInvariant
	}
	if m.children[parentRole] == nil {
		m.children[parentRole] = make(map[string]bool)
	}
	m.children[parentRole][childRole] = true
	return HierarchyEdge{ParentRoleID: parent.ID, ChildRoleID: child.ID, CreatedAt: time.Now()}, nil
}

func (m *memStore) EnsurePermissions(_ context.Context, _ []Permission) error {
	return m.failWith
}

func (m *memStore) ListAuditRecords(_ context.Context, limit int) ([]AuditRecord, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]AuditRecord, 0, limit)
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	codec, err := NewCodec("test-secret", "test-issuer", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	svc, err := NewService(store, codec)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRegisterGrantsCustomerRole(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, " Alice@Example.com ", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if !store.userRoles[user.ID][RoleCustomer] {
		t.Fatal("expected customer role to be granted")
	}
	if len(store.audit) != 1 || store.audit[0].Action != AuditActionGrant {
		t.Fatalf("expected one grant audit record, got %+v", store.audit)
	}

	if _, err := svc.Register(ctx, "alice@example.com", "password123"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	if _, err := svc.Register(ctx, "not-an-email", "password123"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestLoginIssuesTokenPair(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	pair, principal, err := svc.Login(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if !pair.RefreshExpiresAt.After(pair.AccessExpiresAt) {
		t.Fatal("refresh token must outlive access token")
	}
	if !principal.HasPermission(PermOrderRead) {
		t.Fatal("customer should hold order:read")
	}
	if stored := store.users[user.ID]; stored.LastLogin == nil {
		t.Fatal("expected last_login to be recorded")
	}
}

// Wrong password, unknown user and disabled user all collapse into the same
// error so callers cannot probe for valid accounts.
func TestLoginFailureModes(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if store.users[user.ID].FailedLoginAttempts != 1 {
		t.Fatalf("expected failed attempt counter = 1, got %d", store.users[user.ID].FailedLoginAttempts)
	}

	if _, _, err := svc.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown user, got %v", err)
	}

	if err := store.SetUserStatus(ctx, user.ID, UserStatusDisabled); err != nil {
		t.Fatalf("SetUserStatus: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "password123"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for disabled user, got %v", err)
	}
}

// A revoke is visible on the very next authenticated request even though the
// access token still carries the old snapshot.
func TestRevokeTakesEffectMidSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	admin := mustRegister(t, svc, store, "admin@example.com", RoleSuperAdmin)
	user, err := svc.Register(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	adminPrincipal, err := svc.Authenticate(ctx, loginToken(t, svc, "admin@example.com"))
	if err != nil {
		t.Fatalf("Authenticate admin: %v", err)
	}
	if err := svc.AssignRole(ctx, adminPrincipal, user.ID, RoleStoreManager, "promotion"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	token := loginToken(t, svc, "bob@example.com")
	principal, err := svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !principal.HasPermission(PermProductWrite) {
		t.Fatal("store manager should hold product:write")
	}

	if err := svc.RemoveRole(ctx, adminPrincipal, user.ID, RoleStoreManager, "demotion"); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}

	// same token, fresh graph state
	principal, err = svc.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate after revoke: %v", err)
	}
	if principal.HasPermission(PermProductWrite) {
		t.Fatal("product:write must be gone immediately after revoke")
	}
	if !principal.HasPermission(PermOrderRead) {
		t.Fatal("customer permissions must survive the revoke")
	}
	_ = admin
}

func TestRevokeNotHeldRole(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	admin := mustRegister(t, svc, store, "admin@example.com", RoleSuperAdmin)
	user, err := svc.Register(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	adminPrincipal, err := svc.Authenticate(ctx, loginToken(t, svc, "admin@example.com"))
	if err != nil {
		t.Fatalf("Authenticate admin: %v", err)
	}

	before := len(store.audit)
	err = svc.RemoveRole(ctx, adminPrincipal, user.ID, RoleStoreManager, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(store.audit) != before {
		t.Fatal("failed revoke must not leave an audit record")
	}
	_ = admin
}

func TestHierarchyGrantsChildPermissions(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.AddRoleChild(ctx, RoleStoreManager, RoleSupportStaff); err != nil {
		t.Fatalf("AddRoleChild: %v", err)
	}

	admin := mustRegister(t, svc, store, "admin@example.com", RoleSuperAdmin)
	user, err := svc.Register(ctx, "mgr@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	adminPrincipal, err := svc.Authenticate(ctx, loginToken(t, svc, "admin@example.com"))
	if err != nil {
		t.Fatalf("Authenticate admin: %v", err)
	}
	if err := svc.AssignRole(ctx, adminPrincipal, user.ID, RoleStoreManager, ""); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	principal, err := svc.Authenticate(ctx, loginToken(t, svc, "mgr@example.com"))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	// user:read comes only through the support_staff child role
	if !principal.HasPermission(PermUserRead) {
		t.Fatal("expected inherited user:read via hierarchy")
	}

	// the reverse edge would close a cycle
	if _, err := svc.AddRoleChild(ctx, RoleSupportStaff, RoleStoreManager); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant for cycle, got %v", err)
	}
	_ = admin
}

func TestAuthenticateDistinguishesOutageFromDenial(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice@example.com", "password123"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token := loginToken(t, svc, "alice@example.com")

	store.failWith = errors.New("connection refused")
	_, err := svc.Authenticate(ctx, token)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrForbidden) {
		t.Fatal("storage outage must not read as a denial")
	}

	store.failWith = nil
	if _, err := svc.Authenticate(ctx, "garbage-token"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for bad token, got %v", err)
	}
}

func TestAuthenticateDisabledUser(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token := loginToken(t, svc, "alice@example.com")

	if err := store.SetUserStatus(ctx, user.ID, UserStatusDisabled); err != nil {
		t.Fatalf("SetUserStatus: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for disabled user, got %v", err)
	}
}

func TestSetUserStatus(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	token := loginToken(t, svc, "alice@example.com")

	if _, err := svc.SetUserStatus(ctx, user.ID, "banned"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown status, got %v", err)
	}
	if _, err := svc.SetUserStatus(ctx, "missing", UserStatusDisabled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	updated, err := svc.SetUserStatus(ctx, user.ID, UserStatusDisabled)
	if err != nil {
		t.Fatalf("SetUserStatus: %v", err)
	}
	if updated.Status != UserStatusDisabled {
		t.Fatalf("expected disabled status, got %s", updated.Status)
	}
	// the still-valid token no longer authenticates
	if _, err := svc.Authenticate(ctx, token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after deactivation, got %v", err)
	}

	if _, err := svc.SetUserStatus(ctx, user.ID, UserStatusActive); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	if _, err := svc.Authenticate(ctx, token); err != nil {
		t.Fatalf("Authenticate after reactivation: %v", err)
	}
}

func TestRefreshReResolvesGrants(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	admin := mustRegister(t, svc, store, "admin@example.com", RoleSuperAdmin)
	user, err := svc.Register(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	pair, _, err := svc.Login(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	adminPrincipal, err := svc.Authenticate(ctx, loginToken(t, svc, "admin@example.com"))
	if err != nil {
		t.Fatalf("Authenticate admin: %v", err)
	}
	if err := svc.AssignRole(ctx, adminPrincipal, user.ID, RoleStoreManager, ""); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	principal, err := svc.Authenticate(ctx, access)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !principal.HasPermission(PermProductWrite) {
		t.Fatal("refreshed token should reflect the new role")
	}

	if _, _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
	_ = admin
}

func TestAuditTrailOrderAndClamp(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	admin := mustRegister(t, svc, store, "admin@example.com", RoleSuperAdmin)
	user, err := svc.Register(ctx, "bob@example.com", "password123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	adminPrincipal, err := svc.Authenticate(ctx, loginToken(t, svc, "admin@example.com"))
	if err != nil {
		t.Fatalf("Authenticate admin: %v", err)
	}
	if err := svc.AssignRole(ctx, adminPrincipal, user.ID, RoleStoreManager, "promotion"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := svc.RemoveRole(ctx, adminPrincipal, user.ID, RoleStoreManager, "demotion"); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}

	records, err := svc.AuditTrail(ctx, 2)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Action != AuditActionRevoke || records[1].Action != AuditActionGrant {
		t.Fatalf("expected newest-first ordering, got %+v", records)
	}

	// out-of-range limits fall back to the default
	if _, err := svc.AuditTrail(ctx, -5); err != nil {
		t.Fatalf("AuditTrail with negative limit: %v", err)
	}
	_ = admin
}

// --- test helpers ---

func mustRegister(t *testing.T, svc *Service, store *memStore, email, role string) User {
	t.Helper()
	user, err := svc.Register(context.Background(), email, "password123")
	if err != nil {
		t.Fatalf("Register %s: %v", email, err)
	}
	// seed the elevated role directly; bootstrapping the first admin is an
	// operator action, not an API one
	if role != RoleCustomer {
		store.userRoles[user.ID][role] = true
	}
	return user
}

func loginToken(t *testing.T, svc *Service, email string) string {
	t.Helper()
	pair, _, err := svc.Login(context.Background(), email, "password123")
	if err != nil {
		t.Fatalf("Login %s: %v", email, err)
	}
	return pair.AccessToken
}
