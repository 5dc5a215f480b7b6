package admin

import (
	"net/http"

	"github.com/warden-platform/warden-core/internal/domain/rbac"
	"github.com/warden-platform/warden-core/internal/service"
)

// roleResponse is the JSON representation of a role returned by the API.
type roleResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
	IsSystem    bool     `json:"is_system"`
}

func toRoleResponse(role rbac.Role) roleResponse {
	return roleResponse{
		Name:        role.Name,
		Description: role.Description,
		Permissions: role.Permissions.Names(),
		IsSystem:    role.IsSystem,
	}
}

// handleListRoles returns every role in the registry.
// GET /admin/api/roles
func (h *APIHandler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.access.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("failed to list roles", "error", err)
		h.respondFault(w, err)
		return
	}

	result := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		result = append(result, toRoleResponse(role))
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"roles": result,
		"count": len(result),
	})
}

// handleCreateRole defines a custom role over the fixed permission catalog.
// POST /admin/api/roles
func (h *APIHandler) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRoleInput
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	role, err := h.access.CreateRole(r.Context(), req)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, toRoleResponse(role))
}

// handleDeleteRole removes a custom role. System roles and roles still
// assigned to users are refused by the service.
// DELETE /admin/api/roles/{name}
func (h *APIHandler) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	name := h.pathParam(r, "name")

	if err := h.access.DeleteRole(r.Context(), name); err != nil {
		h.respondFault(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// permissionResponse is one catalog row.
type permissionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// handleListPermissions returns the fixed permission catalog, so management
// UIs can offer the full set when composing custom roles.
// GET /admin/api/permissions
func (h *APIHandler) handleListPermissions(w http.ResponseWriter, _ *http.Request) {
	perms := rbac.AllPermissions()
	result := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		result = append(result, permissionResponse{
			Name:        p.Name(),
			Description: p.Description(),
			Category:    string(p.Category()),
		})
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"permissions": result,
		"count":       len(result),
	})
}

// handleUserPermissions returns the effective permission set of one user,
// resolved through their role.
// GET /admin/api/users/{id}/permissions
func (h *APIHandler) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	set, err := h.access.Permissions(r.Context(), id)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"user_id":     id,
		"permissions": set.Names(),
		"count":       set.Len(),
	})
}
