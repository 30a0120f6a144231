package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"storegate.org/internal/auth"
)

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// POST /v1/token
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pair, principal, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.log.Info("token issued", zap.String("user_id", principal.User.ID))
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    pair.AccessExpiresAt,
	})
}

// POST /v1/token/refresh
func (a *API) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	access, expiresAt, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

// POST /v1/users handles self-service registration; the new user starts as a
// customer. GET lists users for staff holding user:read.
func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req registerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		user, err := a.auth.Register(r.Context(), req.Email, req.Password)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", "/v1/users/"+user.ID)
		writeJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermUserRead) {
			return
		}
		limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		users, err := a.auth.ListUsers(r.Context(), limit)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"users": users,
			"count": len(users),
		})
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// GET /v1/users/me
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := mustPrincipal(w, r)
	if !ok {
		return
	}
	perms := make([]string, 0, len(principal.Permissions))
	for key := range principal.Permissions {
		perms = append(perms, key)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        principal.User,
		"roles":       principal.Roles,
		"permissions": perms,
	})
}
