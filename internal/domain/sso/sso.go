// Package sso defines the broker contract that normalizes external identity
// providers into one user shape, plus the provider configuration model.
// Protocol adapters live under adapter/outbound.
package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Supported provider protocols.
const (
	ProtocolOIDC = "oidc"
	ProtocolSAML = "saml"
)

// DefaultScopes is the scope set requested when a provider config names
// none.
var DefaultScopes = []string{"openid", "profile", "email"}

// ProviderConfig describes one configured identity provider. OIDC providers
// use IssuerURL for discovery; SAML providers use MetadataURL for IdP
// metadata.
type ProviderConfig struct {
	// Name identifies the provider ("okta", "corp-adfs").
	Name string `json:"name"`
	// Protocol selects the adapter: oidc or saml.
	Protocol string `json:"protocol"`
	// ClientID is the OAuth client id (OIDC).
	ClientID string `json:"client_id"`
	// ClientSecret is the OAuth client secret (OIDC). Never logged.
	ClientSecret string `json:"-"`
	// IssuerURL is the OIDC issuer base URL.
	IssuerURL string `json:"issuer_url,omitempty"`
	// MetadataURL locates the SAML IdP metadata document.
	MetadataURL string `json:"metadata_url,omitempty"`
	// RedirectURI is where the provider sends the callback.
	RedirectURI string `json:"redirect_uri"`
	// Scopes are the requested OIDC scopes; DefaultScopes when empty.
	Scopes []string `json:"scopes,omitempty"`
}

// TokenResponse is the parsed token-endpoint response of the
// authorization-code exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// User is the normalized identity any provider produces. ExternalID carries
// the provider-scoped stable subject; callers link it to a platform user
// via the identity store's channel index.
type User struct {
	// ExternalID is the provider's stable subject identifier.
	ExternalID string `json:"external_id"`
	// Email is the asserted address, when released.
	Email string `json:"email"`
	// Name is the display name, falling back to preferred_username.
	Name string `json:"name"`
	// Provider is the configured provider name.
	Provider string `json:"provider"`
	// Groups lists asserted group memberships, when released.
	Groups []string `json:"groups,omitempty"`
	// RawClaims carries every claim the provider asserted.
	RawClaims map[string]any `json:"raw_claims,omitempty"`
}

// Broker is the outbound contract every protocol adapter implements: a
// login URL to redirect the browser to, and callback processing that turns
// the provider's payload into the normalized User. For OIDC the payload is
// the authorization code; for SAML it is the raw SAMLResponse.
type Broker interface {
	// Provider returns the configured provider name.
	Provider() string

	// AuthorizeURL returns the provider login URL carrying the CSRF state.
	// When state is empty a fresh one is generated; the used state is
	// returned so the caller can persist it for callback comparison.
	AuthorizeURL(ctx context.Context, state string) (url string, usedState string, err error)

	// Redeem processes the provider callback payload into a User.
	Redeem(ctx context.Context, payload string) (*User, error)
}

// stateBytes is the CSRF state entropy. 32 bytes keeps the encoded state
// above the 32-char floor callers compare against.
const stateBytes = 32

// NewState returns a fresh URL-safe CSRF state token.
func NewState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate sso state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
