package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	// Verify all collectors are registered
	if m.DecisionsTotal == nil {
		t.Error("DecisionsTotal not initialized")
	}
	if m.AuthAttempts == nil {
		t.Error("AuthAttempts not initialized")
	}
	if m.ThreatEvents == nil {
		t.Error("ThreatEvents not initialized")
	}
	if m.AuditAppends == nil {
		t.Error("AuditAppends not initialized")
	}
	if m.AuditChainErrors == nil {
		t.Error("AuditChainErrors not initialized")
	}
	if m.BlockedSources == nil {
		t.Error("BlockedSources not initialized")
	}
	if m.SSOExchanges == nil {
		t.Error("SSOExchanges not initialized")
	}
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.DecisionsTotal.WithLabelValues("allow").Inc()
	m.DecisionsTotal.WithLabelValues("deny").Inc()
	m.DecisionsTotal.WithLabelValues("deny").Inc()

	if got := testutil.ToFloat64(m.DecisionsTotal.WithLabelValues("deny")); got != 2 {
		t.Errorf("DecisionsTotal{deny} = %v, want 2", got)
	}

	m.AuthAttempts.WithLabelValues("failure").Inc()
	if got := testutil.ToFloat64(m.AuthAttempts.WithLabelValues("failure")); got != 1 {
		t.Errorf("AuthAttempts{failure} = %v, want 1", got)
	}

	m.BlockedSources.Set(3)
	if got := testutil.ToFloat64(m.BlockedSources); got != 3 {
		t.Errorf("BlockedSources = %v, want 3", got)
	}

	m.SSOExchanges.WithLabelValues("okta", "success").Inc()
	if got := testutil.ToFloat64(m.SSOExchanges.WithLabelValues("okta", "success")); got != 1 {
		t.Errorf("SSOExchanges{okta,success} = %v, want 1", got)
	}

	m.AuditAppends.Inc()
	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range gathered {
		if strings.Contains(mf.GetName(), "audit_appends") {
			found = true
			break
		}
	}
	if !found {
		t.Error("audit_appends counter not found in gathered metrics")
	}
}

func TestNamespacePrefix(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ThreatEvents.WithLabelValues("high").Inc()

	gathered, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, mf := range gathered {
		if !strings.HasPrefix(mf.GetName(), "warden_") {
			t.Errorf("collector %q missing warden namespace", mf.GetName())
		}
	}
}
