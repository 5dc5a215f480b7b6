package admin

import (
	"net/http"
	"time"

	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/service"
)

// userResponse is the JSON representation of a user returned by the API.
// Credential material has no field here at all, so a marshalling change in
// the domain type can never leak it.
type userResponse struct {
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Email       string            `json:"email,omitempty"`
	RoleName    string            `json:"role_name"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   string            `json:"created_at"`
	LastLoginAt string            `json:"last_login_at,omitempty"`
	Channels    map[string]string `json:"channels,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func toUserResponse(u *identity.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		RoleName:  u.RoleName,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		Channels:  u.Channels,
		Metadata:  u.Metadata,
	}
	if !u.LastLoginAt.IsZero() {
		resp.LastLoginAt = u.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// WithIdentityService sets the user management service.
func WithIdentityService(s *service.IdentityService) APIOption {
	return func(h *APIHandler) { h.identities = s }
}

// handleListUsers returns all users, credentials redacted.
// GET /admin/api/users
func (h *APIHandler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.identities.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list users", "error", err)
		h.respondFault(w, err)
		return
	}

	result := make([]userResponse, 0, len(users))
	for _, u := range users {
		result = append(result, toUserResponse(u))
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"users": result,
		"count": len(result),
	})
}

// handleCreateUser registers a new user.
// POST /admin/api/users
func (h *APIHandler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserInput
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.identities.Create(r.Context(), req)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, toUserResponse(user))
}

// handleGetUser returns one user by id.
// GET /admin/api/users/{id}
func (h *APIHandler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.identities.Get(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, toUserResponse(user))
}

// changeRoleRequest is the JSON body for the role change endpoint.
type changeRoleRequest struct {
	Role string `json:"role"`
}

// handleChangeRole reassigns a user's platform role.
// PUT /admin/api/users/{id}/role
func (h *APIHandler) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var req changeRoleRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Role == "" {
		h.respondError(w, http.StatusBadRequest, "role is required")
		return
	}

	if err := h.identities.ChangeRole(r.Context(), id, req.Role); err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"id":   id,
		"role": req.Role,
	})
}

// handleDeactivateUser deactivates a user account. Deactivation is the
// platform's account removal: the record stays for audit attribution but
// fails every authentication and authorization check.
// POST /admin/api/users/{id}/deactivate
func (h *APIHandler) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	if err := h.identities.Deactivate(r.Context(), id); err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"is_active": false,
	})
}

// linkChannelRequest is the JSON body for the channel link endpoint.
type linkChannelRequest struct {
	Channel    string `json:"channel"`
	ExternalID string `json:"external_id"`
}

// handleLinkChannel binds an external channel identity (telegram id, slack
// id, ...) to the user. A channel identity rebinding is reported back so the
// gateway can tell the previous owner their link moved.
// POST /admin/api/users/{id}/channels
func (h *APIHandler) handleLinkChannel(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var req linkChannelRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Channel == "" || req.ExternalID == "" {
		h.respondError(w, http.StatusBadRequest, "channel and external_id are required")
		return
	}

	previousOwner, err := h.identities.LinkChannel(r.Context(), id, req.Channel, req.ExternalID)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	resp := map[string]string{
		"user_id":     id,
		"channel":     req.Channel,
		"external_id": req.ExternalID,
	}
	if previousOwner != "" {
		resp["previous_owner"] = previousOwner
	}
	h.respondJSON(w, http.StatusOK, resp)
}
