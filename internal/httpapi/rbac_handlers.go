package httpapi

import (
	"net/http"
	"strings"

	"storegate.org/internal/auth"
)

type roleChangeRequest struct {
	Role   string `json:"role"`
	Reason string `json:"reason,omitempty"`
}

type userUpdateRequest struct {
	Status string `json:"status"`
}

// handleUserScoped dispatches /v1/users/{id}, /v1/users/{id}/roles and
// /v1/users/{id}/roles/{role}.
func (a *API) handleUserScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	path = strings.Trim(path, "/")
	if path == "" || path == "me" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1:
		a.handleUserByID(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "roles":
		a.handleGrantRole(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "roles":
		a.handleRevokeRole(w, r, parts[0], parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// Reads need user:read; status changes and deactivation need user:manage.
// DELETE disables the account rather than removing the row, so audit records
// keep a valid subject.
func (a *API) handleUserByID(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermUserRead) {
			return
		}
		user, err := a.auth.GetUser(r.Context(), userID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPatch:
		if !a.ensurePermissions(w, r, auth.PermUserManage) {
			return
		}
		var req userUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.SetUserStatus(r.Context(), userID, req.Status)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, auth.PermUserManage) {
			return
		}
		if _, err := a.auth.SetUserStatus(r.Context(), userID, auth.UserStatusDisabled); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// POST /v1/users/{id}/roles grants a role. Audited; takes effect on the
// subject's very next request.
func (a *API) handleGrantRole(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermUserManageRoles) {
		return
	}
	actor, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	var req roleChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.AssignRole(r.Context(), actor, userID, req.Role, req.Reason); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"role":    req.Role,
	})
}

// DELETE /v1/users/{id}/roles/{role} revokes a role the subject currently
// holds; revoking an unheld role is a 404 and leaves no audit trace.
func (a *API) handleRevokeRole(w http.ResponseWriter, r *http.Request, userID, roleName string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermUserManageRoles) {
		return
	}
	actor, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	reason := r.URL.Query().Get("reason")
	if err := a.auth.RemoveRole(r.Context(), actor, userID, roleName, reason); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"role":    roleName,
	})
}

// GET /v1/admin/audit?limit=N
func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermUserManageRoles) {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	records, err := a.auth.AuditTrail(r.Context(), limit)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// handleRoleScoped dispatches /v1/admin/roles/{parent}/children/{child}.
func (a *API) handleRoleScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/admin/roles/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[1] != "children" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermUserManageRoles) {
		return
	}
	edge, err := a.auth.AddRoleChild(r.Context(), parts[0], parts[2])
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

// GET /v1/admin/system-status is gated on role membership, not a permission
// key. Kept as the one role-gated surface.
func (a *API) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensureRole(w, r, auth.RoleSuperAdmin) {
		return
	}
	status := "ok"
	if err := a.readyProbe.Check(r.Context()); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": a.version,
	})
}
