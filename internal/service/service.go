// Package service wires the security core's registries into operations:
// the audit ledger, identity, access control, API keys, teams, SSO, threat
// detection, compliance reporting, decision evaluation, and snapshots. Each
// service owns one registry, synchronizes its own state, and receives its
// collaborators through the constructor.
package service

import (
	"context"

	"go.opentelemetry.io/otel"

	"github.com/warden-platform/warden-core/internal/domain/audit"
)

// tracer instruments the decision and SSO paths. It resolves against the
// global provider, so spans are no-ops unless telemetry is enabled.
var tracer = otel.Tracer("github.com/warden-platform/warden-core/internal/service")

// PersistHook runs after a successful registry mutation. The daemon wires it
// to the snapshot service so state.json tracks the in-memory registries;
// services treat it as fire-and-forget.
type PersistHook func(ctx context.Context)

// AuditRecorder is the slice of the ledger that mutation-auditing services
// use. *LedgerService implements it.
type AuditRecorder interface {
	Append(ctx context.Context, action string, actor audit.Actor, resource string, decision audit.Decision, opts ...EntryOption) (audit.Entry, error)
}

// Invalidator drops cached authorization results. *AccessService implements
// it; the identity service calls it when a user's role or active flag
// changes.
type Invalidator interface {
	Invalidate()
}

var _ AuditRecorder = (*LedgerService)(nil)
