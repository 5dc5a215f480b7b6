package compliance

import "fmt"

// Posture score weights. They sum to 100 together with the OWASP band.
const (
	weightSandbox     = 10
	weightPolicy      = 10
	weightCanary      = 8
	weightEgress      = 8
	weightAuditLog    = 8
	weightSignatures  = 8
	weightEncryption  = 8
	weightLoopback    = 10
	weightChainValid  = 15
	weightOWASPBand   = 15
	owaspChecksTotal  = 10
	owaspFrameworkTag = "OWASP Agentic Security Top 10"
)

// owaspCheckSpec drives one table row from up to two configuration signals.
// Both true grades compliant, exactly one partial, none non_compliant. Rows
// without a secondary signal grade compliant or non_compliant outright.
type owaspCheckSpec struct {
	id           string
	name         string
	primary      func(Config) bool
	secondary    func(Config) bool
	evidenceBoth string
}

var owaspTable = []owaspCheckSpec{
	{
		id:           "ASI01",
		name:         "Agent Authorization and Control Hijacking",
		primary:      func(c Config) bool { return c.PolicyEngineEnabled },
		secondary:    func(c Config) bool { return c.AuditLoggingEnabled },
		evidenceBoth: "policy engine gates every action; decisions land in the audit ledger",
	},
	{
		id:           "ASI02",
		name:         "Tool Misuse and Injection",
		primary:      func(c Config) bool { return c.SandboxEnabled },
		secondary:    func(c Config) bool { return c.PolicyEngineEnabled },
		evidenceBoth: "tools run sandboxed behind policy checks",
	},
	{
		id:           "ASI03",
		name:         "Privilege Compromise",
		primary:      func(c Config) bool { return c.PolicyEngineEnabled },
		secondary:    func(c Config) bool { return c.LoopbackOnly() },
		evidenceBoth: "role-based permission checks; gateway bound to loopback",
	},
	{
		id:           "ASI04",
		name:         "Resource and Service Exhaustion",
		primary:      func(c Config) bool { return c.SandboxEnabled },
		secondary:    func(c Config) bool { return c.EgressFilteringEnabled },
		evidenceBoth: "sandbox resource caps; egress filtering bounds outbound fan-out",
	},
	{
		id:           "ASI05",
		name:         "Supply Chain and Skill Tampering",
		primary:      func(c Config) bool { return c.SkillSignatureRequired },
		evidenceBoth: "unsigned skills are rejected at install and load",
	},
	{
		id:           "ASI06",
		name:         "Memory and Context Poisoning",
		primary:      func(c Config) bool { return c.CanaryTokensEnabled },
		secondary:    func(c Config) bool { return c.AuditLoggingEnabled },
		evidenceBoth: "canary tokens trip on poisoned recall; reads are audited",
	},
	{
		id:           "ASI07",
		name:         "Insecure Agent-to-Agent Communication",
		primary:      func(c Config) bool { return c.LoopbackOnly() },
		secondary:    func(c Config) bool { return c.EncryptionAtRest() },
		evidenceBoth: "agent traffic stays on loopback; stores are encrypted at rest",
	},
	{
		id:           "ASI08",
		name:         "Data Exfiltration via Agents",
		primary:      func(c Config) bool { return c.EgressFilteringEnabled },
		secondary:    func(c Config) bool { return c.CanaryTokensEnabled },
		evidenceBoth: "egress filtering plus canary tokens on sensitive data",
	},
	{
		id:           "ASI09",
		name:         "Identity Spoofing and Impersonation",
		primary:      func(c Config) bool { return c.SkillSignatureRequired },
		secondary:    func(c Config) bool { return c.EncryptionAtRest() },
		evidenceBoth: "signed artifacts and encrypted credential stores",
	},
	{
		id:           "ASI10",
		name:         "Insufficient Logging and Traceability",
		primary:      func(c Config) bool { return c.AuditLoggingEnabled },
		evidenceBoth: "hash-chained audit ledger records every decision",
	},
}

// runOWASPChecks evaluates the fixed table against the configuration.
func runOWASPChecks(cfg Config) *OWASPReport {
	report := &OWASPReport{
		Framework: owaspFrameworkTag,
		Checks:    make([]OWASPCheck, 0, len(owaspTable)),
	}
	for _, spec := range owaspTable {
		check := OWASPCheck{ID: spec.id, Name: spec.name}
		switch {
		case spec.secondary == nil:
			if spec.primary(cfg) {
				check.Status = StatusCompliant
				check.Evidence = spec.evidenceBoth
			} else {
				check.Status = StatusNonCompliant
				check.Evidence = "control disabled in configuration"
			}
		case spec.primary(cfg) && spec.secondary(cfg):
			check.Status = StatusCompliant
			check.Evidence = spec.evidenceBoth
		case spec.primary(cfg) || spec.secondary(cfg):
			check.Status = StatusPartial
			check.Evidence = "one of two required controls enabled"
		default:
			check.Status = StatusNonCompliant
			check.Evidence = "required controls disabled in configuration"
		}
		if check.Status == StatusCompliant {
			report.Compliant++
		}
		report.Checks = append(report.Checks, check)
	}
	report.Score = fmt.Sprintf("%d/%d", report.Compliant, owaspChecksTotal)
	return report
}

// computeScore applies the fixed weights. The chain band is awarded only
// when a ledger is attached and its chain verifies.
func computeScore(cfg Config, hasLedger, chainValid bool, owaspCompliant int) int {
	score := 0
	if cfg.SandboxEnabled {
		score += weightSandbox
	}
	if cfg.PolicyEngineEnabled {
		score += weightPolicy
	}
	if cfg.CanaryTokensEnabled {
		score += weightCanary
	}
	if cfg.EgressFilteringEnabled {
		score += weightEgress
	}
	if cfg.AuditLoggingEnabled {
		score += weightAuditLog
	}
	if cfg.SkillSignatureRequired {
		score += weightSignatures
	}
	if cfg.EncryptionAtRest() {
		score += weightEncryption
	}
	if cfg.LoopbackOnly() {
		score += weightLoopback
	}
	if hasLedger && chainValid {
		score += weightChainValid
	}
	score += weightOWASPBand * owaspCompliant / owaspChecksTotal
	return score
}

// gradeFor maps a score to its letter grade.
func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
