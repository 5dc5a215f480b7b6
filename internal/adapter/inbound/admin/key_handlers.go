package admin

import (
	"net/http"
	"time"

	"github.com/warden-platform/warden-core/internal/service"
)

// generateKeyRequest is the JSON body for the generate key endpoint.
type generateKeyRequest struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	TTLDays int    `json:"ttl_days,omitempty"`
}

// generateKeyResponse is the JSON response for key generation.
// The raw key is returned exactly once and never stored or logged.
type generateKeyResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	RawKey    string `json:"raw_key"`
	CreatedAt string `json:"created_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// handleGenerateKey issues a new API key for a user.
// POST /admin/api/keys
func (h *APIHandler) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	var req generateKeyRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := h.keys.Generate(r.Context(), service.GenerateKeyInput{
		UserID:  req.UserID,
		Name:    req.Name,
		TTLDays: req.TTLDays,
	})
	if err != nil {
		// Only the error is logged, never the raw key.
		h.respondFault(w, err)
		return
	}

	// The raw key exists in the response body and nowhere else.
	h.respondJSON(w, http.StatusCreated, generateKeyResponse{
		ID:        result.Key.ID,
		UserID:    result.Key.UserID,
		Name:      result.Key.Name,
		RawKey:    result.RawKey,
		CreatedAt: result.Key.CreatedAt.UTC().Format(time.RFC3339),
		ExpiresAt: result.Key.ExpiresAt,
	})
}

// revokeKeyRequest is the JSON body for the revoke endpoint. Revocation is
// by the raw key itself: the holder proves possession, and the core never
// needs an enumerable key id for destruction.
type revokeKeyRequest struct {
	Key string `json:"key"`
}

// handleRevokeKey revokes an API key by its raw value. Revoking a key that
// does not exist (or was already revoked) reports revoked=false rather than
// an error, so revocation is safe to retry.
// POST /admin/api/keys/revoke
func (h *APIHandler) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	var req revokeKeyRequest
	if err := h.readJSON(r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Key == "" {
		h.respondError(w, http.StatusBadRequest, "key is required")
		return
	}

	revoked, err := h.keys.Revoke(r.Context(), req.Key)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}

// handleListUserKeys returns the metadata of a user's keys. Raw keys are
// unrecoverable; only issuance metadata comes back.
// GET /admin/api/users/{id}/keys
func (h *APIHandler) handleListUserKeys(w http.ResponseWriter, r *http.Request) {
	id := h.pathParam(r, "id")

	keys, err := h.keys.List(r.Context(), id)
	if err != nil {
		h.respondFault(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"user_id": id,
		"keys":    keys,
		"count":   len(keys),
	})
}
