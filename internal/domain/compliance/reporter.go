package compliance

import (
	"context"
	"fmt"
	"time"
)

// Reporter derives compliance reports from the configuration and, when
// attached, the audit ledger. Reporters are stateless beyond their inputs
// and safe for concurrent use.
type Reporter struct {
	cfg      Config
	verifier AuditVerifier
	clock    func() time.Time
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithVerifier attaches the audit ledger chain walk. Without it, posture
// reports omit the audit_integrity section and forfeit the chain band.
func WithVerifier(v AuditVerifier) Option {
	return func(r *Reporter) { r.verifier = v }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.clock = now }
}

// NewReporter creates a reporter over the given configuration.
func NewReporter(cfg Config, opts ...Option) *Reporter {
	r := &Reporter{cfg: cfg, clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Posture assembles the security posture report: configuration echo, chain
// walk when a ledger is attached, the OWASP table, and the scored grade.
// A failing chain walk is reported as an invalid chain, not an error.
func (r *Reporter) Posture(ctx context.Context) *PostureReport {
	now := r.clock().UTC()
	owasp := runOWASPChecks(r.cfg)

	report := &PostureReport{
		GeneratedAt: now,
		Configuration: ConfigEcho{
			Config:           r.cfg,
			EncryptionAtRest: r.cfg.EncryptionAtRest(),
			LoopbackOnly:     r.cfg.LoopbackOnly(),
		},
		OWASPAgentic: owasp,
	}

	chainValid := false
	if r.verifier != nil {
		valid, detail, err := r.verifier.VerifyChain(ctx)
		if err != nil {
			valid = false
			detail = fmt.Sprintf("chain walk failed: %v", err)
		}
		chainValid = valid
		report.AuditIntegrity = &AuditIntegrity{
			ChainValid: valid,
			Detail:     detail,
			CheckedAt:  now,
		}
	}

	report.Score = computeScore(r.cfg, r.verifier != nil, chainValid, owasp.Compliant)
	report.Grade = gradeFor(report.Score)
	return report
}

// OWASP returns just the agentic top-10 table.
func (r *Reporter) OWASP() *OWASPReport {
	return runOWASPChecks(r.cfg)
}

// SOC2 assembles the trust-services evidence package for the period of
// days before now.
func (r *Reporter) SOC2(days int) *SOC2Report {
	if days <= 0 {
		days = 30
	}
	now := r.clock().UTC()
	return &SOC2Report{
		Framework:   "SOC 2 Type II",
		PeriodStart: now.AddDate(0, 0, -days),
		PeriodEnd:   now,
		PeriodDays:  days,
		GeneratedAt: now,
		Controls: []SOC2Control{
			{
				ID:     "CC6.1",
				Name:   "Logical and Physical Access Controls",
				Status: "implemented",
				Evidence: []string{
					"role-based permission catalog with default-deny checks",
					"API keys stored as SHA-256 digests with enforced expiry",
					"scrypt password hashing with per-user salts",
				},
			},
			{
				ID:     "CC6.6",
				Name:   "External Access Management",
				Status: "implemented",
				Evidence: []string{
					"SSO brokered through configured OIDC and SAML providers",
					"brute-force sources auto-blocked for 15 minutes",
					"timing-safe authentication responses",
				},
			},
			{
				ID:     "CC7.2",
				Name:   "System Monitoring",
				Status: "implemented",
				Evidence: []string{
					"threat detector with sliding-window and baseline rules",
					"24-hour threat summaries with alert status",
					"hash-chained audit ledger over every decision",
				},
			},
			{
				ID:     "CC8.1",
				Name:   "Change Management",
				Status: "implemented",
				Evidence: []string{
					"append-only journals; tampering detected by chain walk",
					"skill signature enforcement before activation",
				},
			},
		},
	}
}

// ISO27001 returns the fixed Annex A control mapping.
func (r *Reporter) ISO27001() *ISOReport {
	now := r.clock().UTC()
	return &ISOReport{
		Framework:   "ISO/IEC 27001:2022 Annex A",
		GeneratedAt: now,
		Controls: []ISOControl{
			{ID: "A.5", Name: "Information security policies", Status: "implemented", Implementation: "policy engine with versioned rule sets"},
			{ID: "A.6", Name: "Organization of information security", Status: "implemented", Implementation: "team registry with owner-scoped capabilities"},
			{ID: "A.8", Name: "Asset management", Status: "implemented", Implementation: "skill and tool inventory with signature tracking"},
			{ID: "A.9", Name: "Access control", Status: "implemented", Implementation: "role registry, per-user API keys, SSO brokering"},
			{ID: "A.10", Name: "Cryptography", Status: "implemented", Implementation: "scrypt credential hashing, SHA-256 chained ledger"},
			{ID: "A.12", Name: "Operations security", Status: "implemented", Implementation: "threat detection with automated source blocking"},
			{ID: "A.14", Name: "System acquisition, development and maintenance", Status: "partial", Implementation: "signed skills; third-party review process external"},
			{ID: "A.16", Name: "Information security incident management", Status: "implemented", Implementation: "incident report templates with investigation workflow"},
			{ID: "A.18", Name: "Compliance", Status: "implemented", Implementation: "posture, OWASP, SOC 2 and ISO reporting built in"},
		},
	}
}

// Incident returns a fresh incident record in status investigating with a
// single creation timeline entry.
func (r *Reporter) Incident(incidentType, severity, description string) *IncidentReport {
	now := r.clock().UTC()
	return &IncidentReport{
		ID:          fmt.Sprintf("inc_%d", now.UnixNano()),
		Type:        incidentType,
		Severity:    severity,
		Status:      IncidentStatusInvestigating,
		Description: description,
		CreatedAt:   now,
		Timeline: []TimelineEntry{
			{At: now, Note: "incident report created"},
		},
	}
}
