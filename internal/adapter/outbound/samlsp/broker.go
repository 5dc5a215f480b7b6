// Package samlsp implements the SSO broker for SAML 2.0 identity providers.
// The broker acts as the service provider: it fetches IdP metadata once,
// builds redirect-binding authentication requests, and validates signed
// assertion responses posted back by the IdP.
package samlsp

import (
	"context"
	"crypto/x509"
	"encoding/base64"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	saml2 "github.com/russellhaering/gosaml2"
	samltypes "github.com/russellhaering/gosaml2/types"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/warden-platform/warden-core/internal/domain/fault"
	"github.com/warden-platform/warden-core/internal/domain/sso"
)

const (
	metadataTimeout  = 10 * time.Second
	maxMetadataBytes = 1 << 20

	bindingHTTPRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
)

// Option configures a Broker.
type Option func(*Broker)

// WithHTTPClient replaces the HTTP client used for metadata retrieval.
func WithHTTPClient(client *http.Client) Option {
	return func(b *Broker) { b.client = client }
}

// Broker is the SAML service-provider side of an SSO exchange. Assertions
// must be signed with a certificate published in the IdP metadata; encrypted
// assertions are not supported.
type Broker struct {
	cfg    sso.ProviderConfig
	client *http.Client

	mu sync.Mutex
	sp *saml2.SAMLServiceProvider
}

// New builds a broker for one configured identity provider. The IdP metadata
// is fetched lazily on first use.
func New(cfg sso.ProviderConfig, opts ...Option) *Broker {
	b := &Broker{
		cfg:    cfg,
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Provider returns the configured provider name.
func (b *Broker) Provider() string { return b.cfg.Name }

// AuthorizeURL builds the redirect-binding login URL carrying a fresh
// authentication request. The state rides along as RelayState.
func (b *Broker) AuthorizeURL(ctx context.Context, state string) (string, string, error) {
	sp, err := b.provider(ctx)
	if err != nil {
		return "", "", err
	}
	if state == "" {
		state, err = sso.NewState()
		if err != nil {
			return "", "", err
		}
	}

	loginURL, err := sp.BuildAuthURL(state)
	if err != nil {
		return "", "", fault.Wrap(fault.Upstream, "build authentication request", err)
	}
	return loginURL, state, nil
}

// Redeem validates a base64-encoded SAMLResponse and maps the assertion onto
// the shared user shape.
func (b *Broker) Redeem(ctx context.Context, payload string) (*sso.User, error) {
	sp, err := b.provider(ctx)
	if err != nil {
		return nil, err
	}

	info, err := sp.RetrieveAssertionInfo(payload)
	if err != nil {
		return nil, fault.Wrap(fault.Upstream, "validate assertion", err)
	}
	return b.userFromAssertion(info)
}

// provider assembles the gosaml2 service provider from IdP metadata. Only a
// successful fetch is cached; failures surface to the caller and the next
// call retries.
func (b *Broker) provider(ctx context.Context) (*saml2.SAMLServiceProvider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sp != nil {
		return b.sp, nil
	}

	md, err := b.fetchMetadata(ctx)
	if err != nil {
		return nil, err
	}
	sp, err := b.assemble(md)
	if err != nil {
		return nil, err
	}
	b.sp = sp
	return sp, nil
}

func (b *Broker) fetchMetadata(ctx context.Context) (*samltypes.EntityDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.MetadataURL, nil)
	if err != nil {
		return nil, fault.Wrap(fault.Upstream, "build metadata request", err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.Upstream, "fetch identity provider metadata", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.Newf(fault.Upstream, "metadata endpoint returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, fault.Wrap(fault.Upstream, "read identity provider metadata", err)
	}

	md := &samltypes.EntityDescriptor{}
	if err := xml.Unmarshal(raw, md); err != nil {
		return nil, fault.Wrap(fault.Upstream, "parse identity provider metadata", err)
	}
	return md, nil
}

func (b *Broker) assemble(md *samltypes.EntityDescriptor) (*saml2.SAMLServiceProvider, error) {
	if md.IDPSSODescriptor == nil {
		return nil, fault.New(fault.Upstream, "metadata carries no IdP descriptor")
	}

	certStore := &dsig.MemoryX509CertificateStore{}
	for _, kd := range md.IDPSSODescriptor.KeyDescriptors {
		// Unmarked key descriptors count as signing keys.
		if kd.Use != "" && kd.Use != "signing" {
			continue
		}
		for _, xc := range kd.KeyInfo.X509Data.X509Certificates {
			der, err := base64.StdEncoding.DecodeString(stripSpace(xc.Data))
			if err != nil {
				return nil, fault.Wrap(fault.Upstream, "decode metadata certificate", err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fault.Wrap(fault.Upstream, "parse metadata certificate", err)
			}
			certStore.Roots = append(certStore.Roots, cert)
		}
	}
	if len(certStore.Roots) == 0 {
		return nil, fault.New(fault.Upstream, "metadata carries no signing certificates")
	}

	ssoURL := ""
	for _, svc := range md.IDPSSODescriptor.SingleSignOnServices {
		if svc.Binding == bindingHTTPRedirect {
			ssoURL = svc.Location
			break
		}
	}
	if ssoURL == "" && len(md.IDPSSODescriptor.SingleSignOnServices) > 0 {
		ssoURL = md.IDPSSODescriptor.SingleSignOnServices[0].Location
	}
	if ssoURL == "" {
		return nil, fault.New(fault.Upstream, "metadata carries no single sign-on endpoint")
	}

	issuer := md.EntityID
	if issuer == "" {
		issuer = b.cfg.IssuerURL
	}

	return &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      ssoURL,
		IdentityProviderIssuer:      issuer,
		ServiceProviderIssuer:       b.cfg.ClientID,
		AssertionConsumerServiceURL: b.cfg.RedirectURI,
		AudienceURI:                 b.cfg.ClientID,
		IDPCertificateStore:         certStore,
	}, nil
}

// userFromAssertion enforces the validation warnings gosaml2 reports and
// extracts the common identity attributes.
func (b *Broker) userFromAssertion(info *saml2.AssertionInfo) (*sso.User, error) {
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fault.New(fault.Expired, "assertion is outside its validity window")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fault.New(fault.Upstream, "assertion audience does not include this service")
		}
	}
	if info.NameID == "" {
		return nil, fault.New(fault.Upstream, "assertion carries no NameID")
	}

	email := firstAttr(info.Values, "email", "mail", "urn:oid:0.9.2342.19200300.100.1.3")
	if email == "" && strings.Contains(info.NameID, "@") {
		email = info.NameID
	}
	name := firstAttr(info.Values, "displayName", "name", "cn")

	raw := make(map[string]any, len(info.Values))
	for attrName, attr := range info.Values {
		vals := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			vals = append(vals, v.Value)
		}
		raw[attrName] = vals
	}

	return &sso.User{
		ExternalID: info.NameID,
		Email:      email,
		Name:       name,
		Provider:   b.cfg.Name,
		Groups:     allAttr(info.Values, "groups", "memberOf"),
		RawClaims:  raw,
	}, nil
}

// firstAttr returns the first non-empty single value among the named
// attributes.
func firstAttr(values saml2.Values, names ...string) string {
	for _, n := range names {
		if v := values.Get(n); v != "" {
			return v
		}
	}
	return ""
}

// allAttr returns every value of the first named attribute that has any.
func allAttr(values saml2.Values, names ...string) []string {
	for _, n := range names {
		attr, ok := values[n]
		if !ok {
			continue
		}
		out := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			if v.Value != "" {
				out = append(out, v.Value)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// stripSpace drops all whitespace; metadata certificates are often wrapped
// across lines.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// Compile-time interface verification.
var _ sso.Broker = (*Broker)(nil)
