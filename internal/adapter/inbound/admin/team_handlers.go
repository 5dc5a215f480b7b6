package admin

import (
	"net/http"

	"github.com/warden-platform/warden-core/internal/domain/team"
	"github.com/warden-platform/warden-core/internal/service"
)

// WithTeamService sets the team registry service.
func WithTeamService(s *service.TeamService) APIOption {
	return func(h *APIHandler) { h.teams = s }
}

// Team mutations carry the acting user in the request body (or actor_id
// query parameter on DELETEs): the gateway holds the admin key and proxies
// operations chat users trigger, and the team capability matrix must be
// enforced against the user, not the gateway.

// handleListTeams returns all active teams.
// GET /admin/api/teams
func (h *APIHandler) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.teams.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list teams", "error", err)
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"teams": teams,
		"count": len(teams),
	})
}

// handleCreateTeam creates a team owned by the named user.
// POST /admin/api/teams
func (h *APIHandler) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTeamInput
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.teams.Create(r.Context(), req)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, created)
}

// handleGetTeam returns one team by id.
// GET /admin/api/teams/{id}
func (h *APIHandler) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	t, err := h.teams.Get(r.Context(), h.pathParam(r, "id"))
	if err != nil {
		h.respondFault(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, t)
}

// handleDeleteTeam soft-deletes a team on behalf of the acting user.
// DELETE /admin/api/teams/{id}?actor_id=...
func (h *APIHandler) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		h.respondError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	if err := h.teams.Delete(r.Context(), id, actorID); err != nil {
		h.respondFault(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// memberRequest is the JSON body for member add and role update endpoints.
type memberRequest struct {
	UserID  string `json:"user_id,omitempty"`
	Role    string `json:"role"`
	ActorID string `json:"actor_id"`
}

// handleAddMember adds a user to the team.
// POST /admin/api/teams/{id}/members
func (h *APIHandler) handleAddMember(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var req memberRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.teams.AddMember(r.Context(), id, req.UserID, team.TeamRole(req.Role), req.ActorID); err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"team_id": id,
		"user_id": req.UserID,
		"role":    req.Role,
	})
}

// handleRemoveMember removes a member from the team.
// DELETE /admin/api/teams/{id}/members/{user_id}?actor_id=...
func (h *APIHandler) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")
	userID := h.pathParam(r, "user_id")
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		h.respondError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	if err := h.teams.RemoveMember(r.Context(), id, userID, actorID); err != nil {
		h.respondFault(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateMemberRole changes a member's team role.
// PUT /admin/api/teams/{id}/members/{user_id}
func (h *APIHandler) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")
	userID := h.pathParam(r, "user_id")

	var req memberRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.teams.UpdateMemberRole(r.Context(), id, userID, team.TeamRole(req.Role), req.ActorID); err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"team_id": id,
		"user_id": userID,
		"role":    req.Role,
	})
}

// transferRequest is the JSON body for the ownership transfer endpoint.
type transferRequest struct {
	NewOwnerID string `json:"new_owner_id"`
	ActorID    string `json:"actor_id"`
}

// handleTransferOwnership hands the team to another member. The previous
// owner stays on as admin.
// POST /admin/api/teams/{id}/transfer
func (h *APIHandler) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var req transferRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.teams.TransferOwnership(r.Context(), id, req.NewOwnerID, req.ActorID); err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"team_id":  id,
		"owner_id": req.NewOwnerID,
	})
}

// inviteRequest is the JSON body for the invitation endpoint.
type inviteRequest struct {
	Role    string `json:"role"`
	ActorID string `json:"actor_id"`
}

// handleInvite creates a single-use invitation code for the team.
// POST /admin/api/teams/{id}/invitations
func (h *APIHandler) handleInvite(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var req inviteRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inv, err := h.teams.Invite(r.Context(), id, req.ActorID, team.TeamRole(req.Role))
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, inv)
}

// acceptInvitationRequest is the JSON body for invitation acceptance.
type acceptInvitationRequest struct {
	Code   string `json:"code"`
	UserID string `json:"user_id"`
}

// handleAcceptInvitation redeems an invitation code for the named user.
// POST /admin/api/invitations/accept
func (h *APIHandler) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	var req acceptInvitationRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Code == "" || req.UserID == "" {
		h.respondError(w, http.StatusBadRequest, "code and user_id are required")
		return
	}

	joined, err := h.teams.AcceptInvitation(r.Context(), req.Code, req.UserID)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, joined)
}

// handleTeamsOf returns the teams a user belongs to.
// GET /admin/api/users/{id}/teams
func (h *APIHandler) handleTeamsOf(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	teams, err := h.teams.TeamsOf(r.Context(), id)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"user_id": id,
		"teams":   teams,
		"count":   len(teams),
	})
}

// skillRequest is the JSON body for the skill share endpoint.
type skillRequest struct {
	Skill   string `json:"skill"`
	ActorID string `json:"actor_id"`
}

// handleShareSkill shares a skill with the whole team.
// POST /admin/api/teams/{id}/skills
func (h *APIHandler) handleShareSkill(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var req skillRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.teams.ShareSkill(r.Context(), id, req.Skill, req.ActorID); err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{
		"team_id": id,
		"skill":   req.Skill,
	})
}

// handleUnshareSkill removes a shared skill from the team.
// DELETE /admin/api/teams/{id}/skills/{skill}?actor_id=...
func (h *APIHandler) handleUnshareSkill(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")
	skill := h.pathParam(r, "skill")
	actorID := r.URL.Query().Get("actor_id")
	if actorID == "" {
		h.respondError(w, http.StatusBadRequest, "actor_id is required")
		return
	}

	if err := h.teams.UnshareSkill(r.Context(), id, skill, actorID); err != nil {
		h.respondFault(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// updateSettingsRequest is the JSON body for the settings endpoint.
type updateSettingsRequest struct {
	Settings team.Settings `json:"settings"`
	ActorID  string        `json:"actor_id"`
}

// handleUpdateSettings replaces the team's collaboration settings.
// PUT /admin/api/teams/{id}/settings
func (h *APIHandler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	var req updateSettingsRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.teams.UpdateSettings(r.Context(), id, req.Settings, req.ActorID); err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, req.Settings)
}
