// Package audit contains the domain model for the hash-chained audit
// ledger: entry construction, canonical hashing, and chain verification.
package audit

import (
	"strings"
	"time"
)

// LedgerFormatVersion guards the hash preimage layout. Any change to entry
// field names or canonical encoding breaks chain validation across versions
// and must bump this constant.
const LedgerFormatVersion = 1

// GenesisHash anchors the first entry of a ledger.
const GenesisHash = "genesis"

// TimestampLayout is the ISO-8601 UTC form recorded in entries.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Actor identifies the origin of an audited action.
type Actor string

const (
	// ActorUser marks actions initiated by an end user.
	ActorUser Actor = "user"
	// ActorAgent marks actions initiated by an autonomous agent.
	ActorAgent Actor = "agent"
	// ActorSystem marks actions initiated by the platform itself.
	ActorSystem Actor = "system"
)

// IsValid returns true if the actor is a known label.
func (a Actor) IsValid() bool {
	switch a {
	case ActorUser, ActorAgent, ActorSystem:
		return true
	default:
		return false
	}
}

// Decision is the recorded outcome of an audited action.
type Decision string

const (
	// DecisionAllow indicates the action was permitted.
	DecisionAllow Decision = "allow"
	// DecisionDeny indicates the action was blocked.
	DecisionDeny Decision = "deny"
	// DecisionAskUser indicates the action was deferred to user consent.
	DecisionAskUser Decision = "ask_user"
)

// IsValid returns true if the decision is a known outcome.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionAllow, DecisionDeny, DecisionAskUser:
		return true
	default:
		return false
	}
}

// Entry is one immutable record in the hash-chained ledger. EntryHash binds
// every other field plus the previous entry's hash; see ComputeHash.
type Entry struct {
	// Timestamp is the UTC creation time in ISO-8601 form.
	Timestamp string `json:"timestamp"`
	// Action names what happened (e.g. "tool.execute", "auth.login").
	Action string `json:"action"`
	// Actor labels who performed the action.
	Actor Actor `json:"actor"`
	// Resource names what the action touched.
	Resource string `json:"resource"`
	// Decision is the recorded outcome.
	Decision Decision `json:"decision"`
	// Policy names the rule that produced the decision, if any.
	Policy string `json:"policy"`
	// Detail carries free-form context.
	Detail string `json:"detail"`
	// Channel names the ingress the action arrived on, if any.
	Channel string `json:"channel"`
	// PrevHash is the previous entry's EntryHash, or GenesisHash for the
	// first entry ever written.
	PrevHash string `json:"prev_hash"`
	// EntryHash is the SHA-256 hex digest of the canonical preimage.
	EntryHash string `json:"entry_hash"`
}

// FormatTimestamp renders t in the ledger's timestamp form.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// sensitiveKeywords lists substrings that indicate a sensitive detail key.
// Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

// RedactSensitiveArgs returns a copy of args with sensitive values masked.
// A key is sensitive if it contains any of the sensitiveKeywords
// (case-insensitive). Values are replaced with "***REDACTED***".
func RedactSensitiveArgs(args map[string]any) map[string]any {
	if len(args) == 0 {
		return args
	}
	redacted := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			redacted[k] = "***REDACTED***"
		} else {
			redacted[k] = v
		}
	}
	return redacted
}

// isSensitiveKey checks if a key name indicates sensitive data.
func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
