// Package config provides configuration types for the Warden security core.
//
// The core is file-configured and deliberately small: one YAML document (or
// environment variables) describes the core API bind address, the audit
// ledger location, the state snapshot path, the security toggles the
// compliance reports grade, the threat detection thresholds, and the SSO
// providers. Everything else (policies, upstreams, chat transport) belongs
// to the surrounding platform, not to the core.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the top-level configuration for the Warden security core.
type Config struct {
	// Server configures the core API listener and logging.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Ledger configures the hash-chained audit journal.
	Ledger LedgerConfig `yaml:"ledger" mapstructure:"ledger"`

	// State configures the snapshot file that persists users, roles,
	// teams, and key records across restarts.
	State StateConfig `yaml:"state" mapstructure:"state"`

	// Security carries the platform toggles the compliance reports grade.
	// The core does not implement the sandbox or the egress filter; it
	// echoes whether the surrounding platform enabled them.
	Security SecurityConfig `yaml:"security" mapstructure:"security"`

	// Threat configures the detection thresholds and the optional
	// SQLite event archive.
	Threat ThreatConfig `yaml:"threat" mapstructure:"threat"`

	// SSO configures external identity providers.
	SSO SSOConfig `yaml:"sso" mapstructure:"sso"`

	// Telemetry configures the OpenTelemetry provider (off by default).
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Seed is the path to an optional bootstrap file (users, custom
	// roles, key hashes) applied once on first boot.
	Seed string `yaml:"seed" mapstructure:"seed"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the core API listener and logging. The host/port
// pair is where the core binds and where the surrounding gateway reaches
// the decision API; the compliance posture grades it (loopback-only vs
// network-exposed) and SSO redirect defaults derive from it.
type ServerConfig struct {
	// GatewayHost is the core API bind host (e.g., "127.0.0.1", "0.0.0.0").
	// Defaults to "127.0.0.1" (loopback only) if empty.
	GatewayHost string `yaml:"gateway_host" mapstructure:"gateway_host" validate:"omitempty,hostname|ip"`

	// GatewayPort is the core API bind port. Defaults to 7700.
	GatewayPort int `yaml:"gateway_port" mapstructure:"gateway_port" validate:"omitempty,min=1,max=65535"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// LedgerConfig configures the audit journal directory and its read cache.
type LedgerConfig struct {
	// Dir is the directory where day-keyed journal files are stored.
	// Defaults to ~/.warden/audit.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// CacheSize is the number of recent entries kept in memory for the
	// recent-entries view. Defaults to 1000.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// StateConfig configures the snapshot file.
type StateConfig struct {
	// Path is the snapshot file location. Defaults to ~/.warden/state.json.
	Path string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig carries the security toggles echoed into compliance
// reports. Sandbox, policy engine, canary tokens, egress filtering, and
// skill signing are platform features outside the core; their switches
// live here so posture reports grade the deployment, not just the core.
type SecurityConfig struct {
	// SandboxEnabled reports whether tool execution is sandboxed.
	// Defaults to true.
	SandboxEnabled bool `yaml:"sandbox_enabled" mapstructure:"sandbox_enabled"`

	// PolicyEngineEnabled reports whether the policy engine gates actions.
	// Defaults to true.
	PolicyEngineEnabled bool `yaml:"policy_engine_enabled" mapstructure:"policy_engine_enabled"`

	// CanaryTokensEnabled reports whether canary tokens are planted.
	// Defaults to false (opt-in).
	CanaryTokensEnabled bool `yaml:"canary_tokens_enabled" mapstructure:"canary_tokens_enabled"`

	// EgressFilteringEnabled reports whether outbound traffic is filtered.
	// Defaults to false (opt-in).
	EgressFilteringEnabled bool `yaml:"egress_filtering_enabled" mapstructure:"egress_filtering_enabled"`

	// AuditLoggingEnabled reports whether actions are recorded in the
	// ledger. Defaults to true.
	AuditLoggingEnabled bool `yaml:"audit_logging_enabled" mapstructure:"audit_logging_enabled"`

	// SkillSignatureRequired reports whether unsigned skills are rejected.
	// Defaults to false (opt-in).
	SkillSignatureRequired bool `yaml:"skill_signature_required" mapstructure:"skill_signature_required"`
}

// ThreatConfig configures the threat detector thresholds. Durations are
// strings ("5m", "900s") so they read naturally in YAML.
type ThreatConfig struct {
	// MaxFailedAuth is the failed-auth count per source that triggers a
	// brute-force event and an automatic block. Defaults to 5.
	MaxFailedAuth int `yaml:"max_failed_auth" mapstructure:"max_failed_auth" validate:"omitempty,min=1"`

	// AuthWindow is the sliding window for counting auth failures
	// (e.g., "5m"). Defaults to "5m".
	AuthWindow string `yaml:"auth_window" mapstructure:"auth_window" validate:"omitempty,duration"`

	// BlockDuration is how long an auto-blocked source stays blocked
	// (e.g., "15m"). Defaults to "15m".
	BlockDuration string `yaml:"block_duration" mapstructure:"block_duration" validate:"omitempty,duration"`

	// MaxRequestsPerMinute is the per-user request rate that triggers a
	// rate anomaly event. Defaults to 60.
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute" mapstructure:"max_requests_per_minute" validate:"omitempty,min=1"`

	// MaxDataVolume is the single-operation byte count that triggers an
	// exfiltration event. Defaults to 100000.
	MaxDataVolume int `yaml:"max_data_volume" mapstructure:"max_data_volume" validate:"omitempty,min=1"`

	// ArchivePath is the SQLite file for the durable threat-event
	// archive. Empty disables archiving (detection is unaffected).
	ArchivePath string `yaml:"archive_path" mapstructure:"archive_path"`
}

// SSOConfig configures external identity providers.
// Providers are an array and therefore config-file only (no env override).
type SSOConfig struct {
	// Providers lists the configured identity providers.
	Providers []SSOProviderConfig `yaml:"providers" mapstructure:"providers" validate:"omitempty,dive"`
}

// SSOProviderConfig describes one identity provider. OIDC providers need
// issuer_url and client_id; SAML providers need metadata_url. Cross-field
// checks enforce the per-protocol requirements.
type SSOProviderConfig struct {
	// Name identifies the provider ("okta", "corp-adfs"). Must be unique.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Protocol selects the adapter: "oidc" or "saml".
	Protocol string `yaml:"protocol" mapstructure:"protocol" validate:"required,oneof=oidc saml"`

	// ClientID is the OAuth client id (OIDC).
	ClientID string `yaml:"client_id" mapstructure:"client_id"`

	// ClientSecret is the OAuth client secret (OIDC). Prefer the
	// WARDEN_SSO_* environment variables over putting secrets in YAML.
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`

	// IssuerURL is the OIDC issuer base URL (discovery is derived).
	IssuerURL string `yaml:"issuer_url" mapstructure:"issuer_url" validate:"omitempty,url"`

	// MetadataURL locates the SAML IdP metadata document.
	MetadataURL string `yaml:"metadata_url" mapstructure:"metadata_url" validate:"omitempty,url"`

	// RedirectURI is where the provider sends the callback.
	// Defaults to http://127.0.0.1:<gateway_port>/sso/callback/<name>.
	RedirectURI string `yaml:"redirect_uri" mapstructure:"redirect_uri" validate:"omitempty,url"`

	// Scopes are the requested OIDC scopes.
	// Defaults to "openid profile email" when empty.
	Scopes []string `yaml:"scopes" mapstructure:"scopes"`
}

// TelemetryConfig configures the OpenTelemetry provider.
type TelemetryConfig struct {
	// Enabled turns the tracer/meter provider on. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// SetDevDefaults applies development-mode defaults. These are applied
// after file/env loading and CLI flag overrides, before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	// Dev mode always logs at debug.
	c.Server.LogLevel = "debug"
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults: loopback only for security. Deployments that
	// expose the core API must explicitly set gateway_host: "0.0.0.0".
	if c.Server.GatewayHost == "" {
		c.Server.GatewayHost = "127.0.0.1"
	}
	if c.Server.GatewayPort == 0 {
		c.Server.GatewayPort = 7700
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Ledger and state live under ~/.warden unless configured.
	home, homeErr := os.UserHomeDir()
	if c.Ledger.Dir == "" {
		if homeErr == nil {
			c.Ledger.Dir = filepath.Join(home, ".warden", "audit")
		} else {
			c.Ledger.Dir = "warden-audit"
		}
	}
	if c.Ledger.CacheSize == 0 {
		c.Ledger.CacheSize = 1000
	}
	if c.State.Path == "" {
		if homeErr == nil {
			c.State.Path = filepath.Join(home, ".warden", "state.json")
		} else {
			c.State.Path = "warden-state.json"
		}
	}

	// Protective toggles default on when the core owns the feature.
	// viper.IsSet distinguishes "not set" (zero value) from "explicitly
	// false", so an operator can still switch them off.
	if !viper.IsSet("security.sandbox_enabled") {
		c.Security.SandboxEnabled = true
	}
	if !viper.IsSet("security.policy_engine_enabled") {
		c.Security.PolicyEngineEnabled = true
	}
	if !viper.IsSet("security.audit_logging_enabled") {
		c.Security.AuditLoggingEnabled = true
	}

	// Threat thresholds default to the shipped security profile.
	if c.Threat.MaxFailedAuth == 0 {
		c.Threat.MaxFailedAuth = 5
	}
	if c.Threat.AuthWindow == "" {
		c.Threat.AuthWindow = "5m"
	}
	if c.Threat.BlockDuration == "" {
		c.Threat.BlockDuration = "15m"
	}
	if c.Threat.MaxRequestsPerMinute == 0 {
		c.Threat.MaxRequestsPerMinute = 60
	}
	if c.Threat.MaxDataVolume == 0 {
		c.Threat.MaxDataVolume = 100_000
	}

	// Per-provider SSO defaults.
	for i := range c.SSO.Providers {
		p := &c.SSO.Providers[i]
		if p.RedirectURI == "" {
			p.RedirectURI = defaultRedirectURI(c.Server.GatewayPort, p.Name)
		}
	}
}

// defaultRedirectURI builds the loopback callback URL used when a provider
// config names no redirect_uri.
func defaultRedirectURI(port int, provider string) string {
	return fmt.Sprintf("http://127.0.0.1:%d/sso/callback/%s", port, provider)
}
