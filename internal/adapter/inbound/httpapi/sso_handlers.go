package httpapi

import (
	"net/http"

	"github.com/warden-platform/warden-core/internal/domain/identity"
	"github.com/warden-platform/warden-core/internal/domain/sso"
)

// handleSSOProviders lists the configured identity providers. This is the
// login surface's discovery endpoint, so no guard: the caller is exactly
// the party that has no credential yet.
func (s *Server) handleSSOProviders(w http.ResponseWriter, _ *http.Request) {
	providers := s.sso.Providers()
	respondJSON(s.logger, w, http.StatusOK, map[string]any{
		"providers": providers,
		"count":     len(providers),
	})
}

// ssoAuthorizeResponse carries the provider login URL plus the CSRF state
// the caller must persist and compare on callback.
type ssoAuthorizeResponse struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
	State    string `json:"state"`
}

// handleSSOAuthorize starts a login with the named provider. The caller may
// pin its own ?state=; otherwise the broker generates one. Either way the
// state that went into the URL comes back in the response for the caller
// to hold onto.
func (s *Server) handleSSOAuthorize(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	url, state, err := s.sso.AuthorizeURL(r.Context(), provider, r.URL.Query().Get("state"))
	if err != nil {
		respondFault(s.logger, w, err)
		return
	}

	respondJSON(s.logger, w, http.StatusOK, ssoAuthorizeResponse{
		Provider: provider,
		URL:      url,
		State:    state,
	})
}

// ssoCallbackResponse is the JSON result of a completed SSO login.
type ssoCallbackResponse struct {
	User     *identity.User `json:"user"`
	External *sso.User      `json:"external"`
	State    string         `json:"state,omitempty"`
}

// handleSSOCallback terminates the provider redirect: the authorization
// code (OIDC, GET) or SAMLResponse (SAML, POST) is redeemed and resolved to
// the linked platform user. The state/RelayState is echoed back verbatim;
// comparing it against the value issued at authorize time is the caller's
// check, because the core keeps no per-login session.
func (s *Server) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	payload := r.FormValue("SAMLResponse")
	if payload == "" {
		payload = r.FormValue("code")
	}
	if payload == "" {
		respondError(s.logger, w, http.StatusBadRequest, "callback carries neither code nor SAMLResponse")
		return
	}

	state := r.FormValue("RelayState")
	if state == "" {
		state = r.FormValue("state")
	}

	result, err := s.sso.Login(r.Context(), provider, payload)
	if err != nil {
		respondFault(s.logger, w, err)
		return
	}

	respondJSON(s.logger, w, http.StatusOK, ssoCallbackResponse{
		User:     result.User,
		External: result.External,
		State:    state,
	})
}
