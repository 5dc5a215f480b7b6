// Package compliance derives security posture, OWASP agentic, SOC 2, and
// ISO 27001 reports from the platform configuration and the audit ledger.
// Reports are pure derivations: generating one never mutates anything.
package compliance

import (
	"context"
	"time"
)

// Config echoes the security toggles the reports grade. Encryption at rest
// is a platform property, not a toggle, and always reports true.
type Config struct {
	// GatewayHost is the bind host the core API listens on.
	GatewayHost string `json:"gateway_host"`
	// SandboxEnabled reports whether tool execution is sandboxed.
	SandboxEnabled bool `json:"sandbox_enabled"`
	// PolicyEngineEnabled reports whether the policy engine gates actions.
	PolicyEngineEnabled bool `json:"policy_engine_enabled"`
	// CanaryTokensEnabled reports whether canary tokens are planted.
	CanaryTokensEnabled bool `json:"canary_tokens_enabled"`
	// EgressFilteringEnabled reports whether outbound traffic is filtered.
	EgressFilteringEnabled bool `json:"egress_filtering_enabled"`
	// AuditLoggingEnabled reports whether the audit ledger records actions.
	AuditLoggingEnabled bool `json:"audit_logging_enabled"`
	// SkillSignatureRequired reports whether unsigned skills are rejected.
	SkillSignatureRequired bool `json:"skill_signature_required"`
}

// LoopbackOnly reports whether the gateway binds a loopback address only.
func (c Config) LoopbackOnly() bool {
	switch c.GatewayHost {
	case "127.0.0.1", "localhost", "::1":
		return true
	default:
		return false
	}
}

// EncryptionAtRest is fixed true for the platform's managed stores.
func (c Config) EncryptionAtRest() bool { return true }

// AuditVerifier is the slice of the ledger the reporter consumes: a chain
// walk over the current journal.
type AuditVerifier interface {
	// VerifyChain recomputes hashes over today's journal and reports
	// validity with a human-readable detail.
	VerifyChain(ctx context.Context) (valid bool, detail string, err error)
}

// CheckStatus grades one compliance check.
type CheckStatus string

const (
	StatusCompliant    CheckStatus = "compliant"
	StatusPartial      CheckStatus = "partial"
	StatusNonCompliant CheckStatus = "non_compliant"
)

// ConfigEcho is the configuration section of the posture report, the
// toggles plus the derived properties.
type ConfigEcho struct {
	Config
	EncryptionAtRest bool `json:"encryption_at_rest"`
	LoopbackOnly     bool `json:"loopback_only"`
}

// AuditIntegrity is the posture section describing the ledger chain walk.
type AuditIntegrity struct {
	ChainValid bool      `json:"chain_valid"`
	Detail     string    `json:"detail,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// PostureReport is the top-level security posture assessment.
type PostureReport struct {
	GeneratedAt    time.Time       `json:"generated_at"`
	Configuration  ConfigEcho      `json:"configuration"`
	AuditIntegrity *AuditIntegrity `json:"audit_integrity,omitempty"`
	OWASPAgentic   *OWASPReport    `json:"owasp_agentic"`
	Score          int             `json:"score"`
	Grade          string          `json:"grade"`
}

// OWASPCheck is one row of the agentic top-10 table.
type OWASPCheck struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Evidence string      `json:"evidence"`
}

// OWASPReport is the OWASP agentic compliance table.
type OWASPReport struct {
	Framework string       `json:"framework"`
	Checks    []OWASPCheck `json:"checks"`
	Compliant int          `json:"compliant"`
	Score     string       `json:"score"`
}

// SOC2Control is one trust-services control with its evidence.
type SOC2Control struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Evidence []string `json:"evidence"`
}

// SOC2Report is the evidence package for a reporting period.
type SOC2Report struct {
	Framework   string        `json:"framework"`
	PeriodStart time.Time     `json:"period_start"`
	PeriodEnd   time.Time     `json:"period_end"`
	PeriodDays  int           `json:"period_days"`
	Controls    []SOC2Control `json:"controls"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// ISOControl is one Annex A control mapping.
type ISOControl struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Implementation string `json:"implementation"`
}

// ISOReport maps platform features onto ISO 27001 Annex A.
type ISOReport struct {
	Framework   string       `json:"framework"`
	Controls    []ISOControl `json:"controls"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// TimelineEntry is one step in an incident timeline.
type TimelineEntry struct {
	At   time.Time `json:"at"`
	Note string    `json:"note"`
}

// IncidentReport is the templated incident record. New reports open in
// status investigating with a single creation timeline entry.
type IncidentReport struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Severity    string          `json:"severity"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	Timeline    []TimelineEntry `json:"timeline"`
}

// IncidentStatusInvestigating is the status every fresh incident carries.
const IncidentStatusInvestigating = "investigating"
