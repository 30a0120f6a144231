package auth

import "testing"

func testPrincipal() Principal {
	return NewPrincipal(
		User{ID: "user-1", Email: "alice@example.com"},
		[]Role{{ID: "role-c", Name: RoleCustomer}},
		[]string{PermOrderRead, PermProductRead, PermPaymentRead},
	)
}

func TestPrincipalPermissionChecks(t *testing.T) {
	p := testPrincipal()

	if !p.HasPermission(PermOrderRead) {
		t.Fatal("expected order:read to be held")
	}
	if p.HasPermission(PermUserManageRoles) {
		t.Fatal("user:manage_roles must not be held")
	}
	if !p.HasRole(RoleCustomer) {
		t.Fatal("expected customer role")
	}
	if p.HasRole(RoleSuperAdmin) {
		t.Fatal("super_admin must not be held")
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	p := testPrincipal()

	if !p.HasAnyPermission(PermUserManageRoles, PermOrderRead) {
		t.Fatal("any-of check should pass when one key is held")
	}
	if p.HasAnyPermission(PermUserManageRoles, PermProductDelete) {
		t.Fatal("any-of check should fail when no key is held")
	}
	if !p.HasAllPermissions(PermOrderRead, PermProductRead) {
		t.Fatal("all-of check should pass when every key is held")
	}
	if p.HasAllPermissions(PermOrderRead, PermProductDelete) {
		t.Fatal("all-of check should fail when one key is missing")
	}
}

func TestPermissionGate(t *testing.T) {
	p := testPrincipal()

	anyGate := PermissionGate{Required: []string{PermOrderRead, PermUserManageRoles}}
	if !anyGate.Allows(p) {
		t.Fatal("any-of gate should allow")
	}
	allGate := PermissionGate{Required: []string{PermOrderRead, PermUserManageRoles}, RequireAll: true}
	if allGate.Allows(p) {
		t.Fatal("all-of gate should deny")
	}
	empty := PermissionGate{}
	if !empty.Allows(p) {
		t.Fatal("empty gate should allow")
	}
}
