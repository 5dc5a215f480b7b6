// Package admin provides the JSON management API for the Warden security
// core: user, role, key, and team administration for the surrounding
// platform. It is mounted on the core listener under /admin/api/.
package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/service"
)

// APIHandler provides the JSON management endpoints. Handlers mirror the
// service surfaces: team operations take the acting user explicitly because
// the gateway proxies them on behalf of chat users, and the service layer
// enforces the team capability matrix against that actor.
type APIHandler struct {
	identities *service.IdentityService
	access     *service.AccessService
	keys       *service.KeyService
	teams      *service.TeamService
	sso        *service.SSOService
	users      identity.Store

	buildInfo *BuildInfo
	devMode   bool
	logger    *slog.Logger
	startTime time.Time
}

// APIOption configures an APIHandler dependency.
type APIOption func(*APIHandler)

// WithAccessService sets the role registry and authorization service.
func WithAccessService(s *service.AccessService) APIOption {
	return func(h *APIHandler) { h.access = s }
}

// WithKeyService sets the API key service.
func WithKeyService(s *service.KeyService) APIOption {
	return func(h *APIHandler) { h.keys = s }
}

// WithSSOService sets the SSO broker registry for the provider listing.
func WithSSOService(s *service.SSOService) APIOption {
	return func(h *APIHandler) { h.sso = s }
}

// WithUserStore sets the raw identity store the permission guard reads.
// The guard needs the unredacted active flag, not the service views.
func WithUserStore(s identity.Store) APIOption {
	return func(h *APIHandler) { h.users = s }
}

// WithBuildInfo sets the build version information.
func WithBuildInfo(info *BuildInfo) APIOption {
	return func(h *APIHandler) { h.buildInfo = info }
}

// WithDevMode waives the permission guard, matching the core server's
// dev-mode behavior for local operation before any key exists.
func WithDevMode(dev bool) APIOption {
	return func(h *APIHandler) { h.devMode = dev }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) APIOption {
	return func(h *APIHandler) { h.logger = l }
}

// NewAPIHandler creates an APIHandler with the given options.
func NewAPIHandler(opts ...APIOption) *APIHandler {
	h := &APIHandler{
		logger:    slog.Default(),
		startTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all management routes registered.
// Every route group is wrapped with the bearer-key permission guard for
// the admin permission that owns it.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// User management (admin.users).
	mux.Handle("GET /admin/api/users", h.guard(permUsers, h.handleListUsers))
	mux.Handle("POST /admin/api/users", h.guard(permUsers, h.handleCreateUser))
	mux.Handle("GET /admin/api/users/{id}", h.guard(permUsers, h.handleGetUser))
	mux.Handle("PUT /admin/api/users/{id}/role", h.guard(permUsers, h.handleChangeRole))
	mux.Handle("POST /admin/api/users/{id}/deactivate", h.guard(permUsers, h.handleDeactivateUser))
	mux.Handle("POST /admin/api/users/{id}/channels", h.guard(permUsers, h.handleLinkChannel))
	mux.Handle("GET /admin/api/users/{id}/permissions", h.guard(permUsers, h.handleUserPermissions))
	mux.Handle("GET /admin/api/users/{id}/keys", h.guard(permUsers, h.handleListUserKeys))
	mux.Handle("GET /admin/api/users/{id}/teams", h.guard(permTeams, h.handleTeamsOf))

	// Role registry (admin.roles).
	mux.Handle("GET /admin/api/roles", h.guard(permRoles, h.handleListRoles))
	mux.Handle("POST /admin/api/roles", h.guard(permRoles, h.handleCreateRole))
	mux.Handle("DELETE /admin/api/roles/{name}", h.guard(permRoles, h.handleDeleteRole))
	mux.Handle("GET /admin/api/permissions", h.guard(permRoles, h.handleListPermissions))

	// API key management (admin.users: keys belong to users).
	mux.Handle("POST /admin/api/keys", h.guard(permUsers, h.handleGenerateKey))
	mux.Handle("POST /admin/api/keys/revoke", h.guard(permUsers, h.handleRevokeKey))

	// Team registry (admin.teams).
	mux.Handle("GET /admin/api/teams", h.guard(permTeams, h.handleListTeams))
	mux.Handle("POST /admin/api/teams", h.guard(permTeams, h.handleCreateTeam))
	mux.Handle("GET /admin/api/teams/{id}", h.guard(permTeams, h.handleGetTeam))
	mux.Handle("DELETE /admin/api/teams/{id}", h.guard(permTeams, h.handleDeleteTeam))
	mux.Handle("POST /admin/api/teams/{id}/members", h.guard(permTeams, h.handleAddMember))
	mux.Handle("DELETE /admin/api/teams/{id}/members/{user_id}", h.guard(permTeams, h.handleRemoveMember))
	mux.Handle("PUT /admin/api/teams/{id}/members/{user_id}", h.guard(permTeams, h.handleUpdateMemberRole))
	mux.Handle("POST /admin/api/teams/{id}/transfer", h.guard(permTeams, h.handleTransferOwnership))
	mux.Handle("POST /admin/api/teams/{id}/invitations", h.guard(permTeams, h.handleInvite))
	mux.Handle("POST /admin/api/teams/{id}/skills", h.guard(permTeams, h.handleShareSkill))
	mux.Handle("DELETE /admin/api/teams/{id}/skills/{skill}", h.guard(permTeams, h.handleUnshareSkill))
	mux.Handle("PUT /admin/api/teams/{id}/settings", h.guard(permTeams, h.handleUpdateSettings))
	mux.Handle("POST /admin/api/invitations/accept", h.guard(permTeams, h.handleAcceptInvitation))

	// System info and SSO provider listing (system.monitor).
	mux.Handle("GET /admin/api/system", h.guard(permMonitor, h.handleSystemInfo))
	mux.Handle("GET /admin/api/sso/providers", h.guard(permMonitor, h.handleListProviders))

	return mux
}

// respondJSON writes a JSON response with the given status code and data.
func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status and message.
func (h *APIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// respondFault maps a service error onto its HTTP status.
func (h *APIHandler) respondFault(w http.ResponseWriter, err error) {
	h.respondError(w, kindStatus(fault.KindOf(err)), err.Error())
}

// kindStatus maps fault kinds onto HTTP statuses.
func kindStatus(k fault.Kind) int {
	switch k {
	case fault.InvalidArgument:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.AlreadyExists:
		return http.StatusConflict
	case fault.PermissionDenied, fault.Blocked:
		return http.StatusForbidden
	case fault.Expired:
		return http.StatusUnauthorized
	case fault.LimitExceeded:
		return http.StatusTooManyRequests
	case fault.Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodes the request body into the given value.
func (h *APIHandler) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// pathParam extracts a named path parameter from the request URL.
// Uses Go 1.22+ PathValue.
func (h *APIHandler) pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
