package auth

import "strings"

// Principal is a subject with freshly resolved roles and effective
// permissions. The token proves identity; the graph proves authorization, so
// a Principal is always built from current storage state, never from token
// claims alone.
type Principal struct {
	User        User
	Roles       []string
	Permissions map[string]struct{}
}

// NewPrincipal builds a principal from resolved graph state.
func NewPrincipal(user User, roles []Role, permissionKeys []string) Principal {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	set := make(map[string]struct{}, len(permissionKeys))
	for _, k := range permissionKeys {
		set[k] = struct{}{}
	}
	return Principal{User: user, Roles: names, Permissions: set}
}

// HasPermission reports whether the principal holds the permission.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}

// HasRole reports whether the principal directly holds the role.
func (p Principal) HasRole(name string) bool {
	name = strings.TrimSpace(strings.ToLower(name))
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of the keys is held.
func (p Principal) HasAnyPermission(keys ...string) bool {
	for _, k := range keys {
		if p.HasPermission(k) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every key is held.
func (p Principal) HasAllPermissions(keys ...string) bool {
	for _, k := range keys {
		if !p.HasPermission(k) {
			return false
		}
	}
	return true
}

// PermissionGate is a per-endpoint policy over a required permission set.
// RequireAll selects AND semantics; the default is OR.
type PermissionGate struct {
	Required   []string
	RequireAll bool
}

// Allows evaluates the gate against the principal's effective permissions.
// An empty required set allows any authenticated principal.
func (g PermissionGate) Allows(p Principal) bool {
	if len(g.Required) == 0 {
		return true
	}
	if g.RequireAll {
		return p.HasAllPermissions(g.Required...)
	}
	return p.HasAnyPermission(g.Required...)
}
