package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"storegate.org/internal/auth"
	"storegate.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// Paths that never require a token. Token issuance has to be reachable
// without one; registration is public for POST only, since GET /v1/users is
// the staff user listing.
var publicPaths = []string{
	"/v1/token",
	"/v1/token/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates the bearer token and stores the principal in the
// request context. The token proves identity only; roles and permissions are
// resolved from storage on every request, so a revoke takes effect on the
// next call even for tokens issued before it.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.auth == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if r.URL.Path == "/v1/users" && r.Method == http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions checks the principal against the required permission
// keys (all of them) and writes the error response itself on failure.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, perms ...string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasAllPermissions(perms...) {
		a.denied(r, principal, strings.Join(perms, ","))
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	obs.ObserveAuthzDecision("allow")
	return true
}

// ensureAnyPermission allows when the principal holds at least one key.
func (a *API) ensureAnyPermission(w http.ResponseWriter, r *http.Request, perms ...string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasAnyPermission(perms...) {
		a.denied(r, principal, strings.Join(perms, "|"))
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	obs.ObserveAuthzDecision("allow")
	return true
}

// ensureRole gates on role membership rather than a permission key.
func (a *API) ensureRole(w http.ResponseWriter, r *http.Request, role string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !principal.HasRole(role) {
		a.denied(r, principal, "role:"+role)
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	obs.ObserveAuthzDecision("allow")
	return true
}

func (a *API) denied(r *http.Request, principal auth.Principal, required string) {
	obs.ObserveAuthzDecision("deny")
	a.log.Info("authorization denied",
		zap.String("user_id", principal.User.ID),
		zap.String("path", r.URL.Path),
		zap.String("required", required),
		zap.String("request_id", RequestIDFromContext(r.Context())),
	)
}

// mustPrincipal is for handlers that only need the caller's identity.
func mustPrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
	}
	return principal, ok
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
