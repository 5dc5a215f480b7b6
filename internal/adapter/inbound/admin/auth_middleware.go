package admin

import (
	"net/http"
	"strings"

	"github.com/warden-platform/warden-core/internal/domain/rbac"
)

// Route groups and the admin permission that owns each.
const (
	permUsers   = rbac.PermAdminUsers
	permRoles   = rbac.PermAdminRoles
	permTeams   = rbac.PermAdminTeams
	permMonitor = rbac.PermSystemMonitor
)

// guard wraps a management handler with the bearer-key permission check:
// the presented key must validate and its owner's role must hold perm.
// Failed validation is answered uniformly so the endpoint does not reveal
// whether a key exists, is expired, or was revoked. Dev mode waives the
// guard so the key bootstrap problem does not lock operators out.
func (h *APIHandler) guard(perm rbac.Permission, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.devMode {
			next(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			h.respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		key, err := h.keys.Validate(r.Context(), raw)
		if err != nil {
			h.respondError(w, http.StatusUnauthorized, "invalid credential")
			return
		}
		user, err := h.users.Get(r.Context(), key.UserID)
		if err != nil || !user.IsActive {
			h.respondError(w, http.StatusUnauthorized, "invalid credential")
			return
		}

		allowed, err := h.access.Check(r.Context(), user.ID, perm)
		if err != nil {
			h.respondFault(w, err)
			return
		}
		if !allowed {
			h.respondError(w, http.StatusForbidden, "role "+user.RoleName+" lacks "+perm.Name())
			return
		}

		next(w, r)
	})
}

// bearerToken extracts the Bearer credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
