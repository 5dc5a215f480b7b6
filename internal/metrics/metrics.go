// Package metrics defines the Prometheus collectors for the security core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the security core.
// Pass to services that need to record metrics; a nil *Metrics disables
// recording.
type Metrics struct {
	// DecisionsTotal counts authorization decisions by outcome
	// (allow/deny/ask_user).
	DecisionsTotal *prometheus.CounterVec
	// AuthAttempts counts authentication attempts by result
	// (success/failure).
	AuthAttempts *prometheus.CounterVec
	// ThreatEvents counts emitted threat events by level.
	ThreatEvents *prometheus.CounterVec
	// AuditAppends counts entries sealed into the ledger.
	AuditAppends prometheus.Counter
	// AuditChainErrors counts failed chain verifications.
	AuditChainErrors prometheus.Counter
	// BlockedSources tracks the current number of blocked sources.
	BlockedSources prometheus.Gauge
	// SSOExchanges counts SSO redemptions by provider and result.
	SSOExchanges *prometheus.CounterVec
}

// New creates and registers all collectors with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "decisions_total",
				Help:      "Total authorization decisions by outcome",
			},
			[]string{"outcome"},
		),
		AuthAttempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "auth_attempts_total",
				Help:      "Total authentication attempts by result",
			},
			[]string{"result"},
		),
		ThreatEvents: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "threat_events_total",
				Help:      "Total threat events emitted by level",
			},
			[]string{"level"},
		),
		AuditAppends: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "audit_appends_total",
				Help:      "Total entries appended to the audit ledger",
			},
		),
		AuditChainErrors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "audit_chain_errors_total",
				Help:      "Total audit chain verifications that found tampering",
			},
		),
		BlockedSources: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "warden",
				Name:      "blocked_sources",
				Help:      "Number of sources currently blocked by the threat detector",
			},
		),
		SSOExchanges: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "warden",
				Name:      "sso_exchanges_total",
				Help:      "Total SSO redemptions by provider and result",
			},
			[]string{"provider", "result"},
		),
	}
}
