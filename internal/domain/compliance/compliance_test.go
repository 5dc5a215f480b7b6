package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fullOnConfig() Config {
	return Config{
		GatewayHost:            "127.0.0.1",
		SandboxEnabled:         true,
		PolicyEngineEnabled:    true,
		CanaryTokensEnabled:    true,
		EgressFilteringEnabled: true,
		AuditLoggingEnabled:    true,
		SkillSignatureRequired: true,
	}
}

func allOffConfig() Config {
	return Config{GatewayHost: "0.0.0.0"}
}

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

// stubVerifier implements AuditVerifier for posture tests.
type stubVerifier struct {
	valid  bool
	detail string
	err    error
}

func (s *stubVerifier) VerifyChain(context.Context) (bool, string, error) {
	return s.valid, s.detail, s.err
}

func TestPostureFullOnScoresA(t *testing.T) {
	t.Parallel()

	r := NewReporter(fullOnConfig(),
		WithClock(fixedClock()),
		WithVerifier(&stubVerifier{valid: true, detail: "3 entries verified"}),
	)

	report := r.Posture(context.Background())
	if report.Score != 100 {
		t.Errorf("full-on score = %d, want 100", report.Score)
	}
	if report.Grade != "A" {
		t.Errorf("grade = %q, want A", report.Grade)
	}
	if report.AuditIntegrity == nil || !report.AuditIntegrity.ChainValid {
		t.Error("audit integrity should report a valid chain")
	}
	if report.OWASPAgentic.Score != "10/10" {
		t.Errorf("owasp score = %q, want 10/10", report.OWASPAgentic.Score)
	}
	if !report.Configuration.LoopbackOnly {
		t.Error("127.0.0.1 should count as loopback-only")
	}
	if !report.Configuration.EncryptionAtRest {
		t.Error("encryption at rest is always reported true")
	}
}

func TestPostureFullOnWithoutLedgerStaysAboveEighty(t *testing.T) {
	t.Parallel()

	r := NewReporter(fullOnConfig(), WithClock(fixedClock()))
	report := r.Posture(context.Background())

	if report.AuditIntegrity != nil {
		t.Error("no verifier attached, audit_integrity section should be absent")
	}
	if report.Score < 80 {
		t.Errorf("full-on score without ledger = %d, want >= 80", report.Score)
	}
	if report.Score >= 100 {
		t.Errorf("chain band must be withheld without a ledger, score = %d", report.Score)
	}
}

func TestPostureAllOffScoresF(t *testing.T) {
	t.Parallel()

	r := NewReporter(allOffConfig(), WithClock(fixedClock()))
	report := r.Posture(context.Background())

	if report.Score >= 50 {
		t.Errorf("all-off score = %d, want < 50", report.Score)
	}
	if report.Grade != "F" {
		t.Errorf("grade = %q, want F", report.Grade)
	}
	if report.Configuration.LoopbackOnly {
		t.Error("0.0.0.0 must not count as loopback-only")
	}
}

func TestPostureInvalidChainLosesBand(t *testing.T) {
	t.Parallel()

	valid := NewReporter(fullOnConfig(),
		WithClock(fixedClock()),
		WithVerifier(&stubVerifier{valid: true}),
	).Posture(context.Background())

	tampered := NewReporter(fullOnConfig(),
		WithClock(fixedClock()),
		WithVerifier(&stubVerifier{valid: false, detail: "entry 2 tampered: hash mismatch"}),
	).Posture(context.Background())

	if got := valid.Score - tampered.Score; got != weightChainValid {
		t.Errorf("chain band difference = %d, want %d", got, weightChainValid)
	}
	if tampered.AuditIntegrity.ChainValid {
		t.Error("tampered chain should be reported invalid")
	}
	if tampered.AuditIntegrity.Detail != "entry 2 tampered: hash mismatch" {
		t.Errorf("detail = %q", tampered.AuditIntegrity.Detail)
	}
}

func TestPostureVerifierErrorReportedNotFatal(t *testing.T) {
	t.Parallel()

	r := NewReporter(fullOnConfig(),
		WithClock(fixedClock()),
		WithVerifier(&stubVerifier{err: errors.New("journal unreadable")}),
	)

	report := r.Posture(context.Background())
	if report.AuditIntegrity == nil {
		t.Fatal("audit_integrity should be present even when the walk fails")
	}
	if report.AuditIntegrity.ChainValid {
		t.Error("failed walk must report an invalid chain")
	}
	if !strings.Contains(report.AuditIntegrity.Detail, "journal unreadable") {
		t.Errorf("detail should carry the failure, got %q", report.AuditIntegrity.Detail)
	}
}

func TestGradeBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score int
		want  string
	}{
		{100, "A"}, {90, "A"}, {89, "B"}, {80, "B"},
		{79, "C"}, {70, "C"}, {69, "D"}, {60, "D"}, {59, "F"}, {0, "F"},
	}
	for _, tt := range tests {
		if got := gradeFor(tt.score); got != tt.want {
			t.Errorf("gradeFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestOWASPTableShape(t *testing.T) {
	t.Parallel()

	report := NewReporter(fullOnConfig()).OWASP()
	if len(report.Checks) != 10 {
		t.Fatalf("check count = %d, want 10", len(report.Checks))
	}
	for i, check := range report.Checks {
		wantID := "ASI" + string(rune('0'+(i+1)/10)) + string(rune('0'+(i+1)%10))
		if check.ID != wantID {
			t.Errorf("check %d id = %q, want %q", i, check.ID, wantID)
		}
		if check.Name == "" || check.Evidence == "" {
			t.Errorf("check %s missing name or evidence", check.ID)
		}
		if check.Status != StatusCompliant {
			t.Errorf("full-on check %s status = %q, want compliant", check.ID, check.Status)
		}
	}
	if report.Compliant != 10 || report.Score != "10/10" {
		t.Errorf("compliant = %d score = %q", report.Compliant, report.Score)
	}
}

func TestOWASPPartialStates(t *testing.T) {
	t.Parallel()

	cfg := allOffConfig()
	cfg.PolicyEngineEnabled = true
	report := NewReporter(cfg).OWASP()

	statuses := make(map[string]CheckStatus, len(report.Checks))
	for _, check := range report.Checks {
		statuses[check.ID] = check.Status
	}

	// Policy alone: ASI01 (policy+audit) and ASI02 (sandbox+policy) are
	// half-covered, ASI10 (audit only) is not covered at all.
	if statuses["ASI01"] != StatusPartial {
		t.Errorf("ASI01 = %q, want partial", statuses["ASI01"])
	}
	if statuses["ASI02"] != StatusPartial {
		t.Errorf("ASI02 = %q, want partial", statuses["ASI02"])
	}
	if statuses["ASI10"] != StatusNonCompliant {
		t.Errorf("ASI10 = %q, want non_compliant", statuses["ASI10"])
	}
	if report.Compliant != 0 {
		t.Errorf("compliant = %d, want 0", report.Compliant)
	}
}

func TestSOC2Period(t *testing.T) {
	t.Parallel()

	r := NewReporter(fullOnConfig(), WithClock(fixedClock()))
	report := r.SOC2(7)

	if report.PeriodDays != 7 {
		t.Errorf("PeriodDays = %d, want 7", report.PeriodDays)
	}
	if got := report.PeriodEnd.Sub(report.PeriodStart); got != 7*24*time.Hour {
		t.Errorf("period span = %v, want 168h", got)
	}

	wantControls := []string{"CC6.1", "CC6.6", "CC7.2", "CC8.1"}
	if len(report.Controls) != len(wantControls) {
		t.Fatalf("control count = %d, want %d", len(report.Controls), len(wantControls))
	}
	for i, control := range report.Controls {
		if control.ID != wantControls[i] {
			t.Errorf("control %d = %q, want %q", i, control.ID, wantControls[i])
		}
		if len(control.Evidence) == 0 {
			t.Errorf("control %s has no evidence", control.ID)
		}
	}

	// Non-positive day counts fall back to the 30-day default.
	if got := r.SOC2(0).PeriodDays; got != 30 {
		t.Errorf("SOC2(0) PeriodDays = %d, want 30", got)
	}
}

func TestISO27001Mapping(t *testing.T) {
	t.Parallel()

	report := NewReporter(fullOnConfig(), WithClock(fixedClock())).ISO27001()
	wantIDs := []string{"A.5", "A.6", "A.8", "A.9", "A.10", "A.12", "A.14", "A.16", "A.18"}
	if len(report.Controls) != len(wantIDs) {
		t.Fatalf("control count = %d, want %d", len(report.Controls), len(wantIDs))
	}
	for i, control := range report.Controls {
		if control.ID != wantIDs[i] {
			t.Errorf("control %d = %q, want %q", i, control.ID, wantIDs[i])
		}
		if control.Implementation == "" {
			t.Errorf("control %s has empty implementation", control.ID)
		}
	}
}

func TestIncidentTemplate(t *testing.T) {
	t.Parallel()

	r := NewReporter(fullOnConfig(), WithClock(fixedClock()))
	incident := r.Incident("data_breach", "high", "canary token fired in shared memory")

	if incident.Status != IncidentStatusInvestigating {
		t.Errorf("status = %q, want %q", incident.Status, IncidentStatusInvestigating)
	}
	if incident.Type != "data_breach" || incident.Severity != "high" {
		t.Errorf("type/severity = %q/%q", incident.Type, incident.Severity)
	}
	if len(incident.Timeline) != 1 {
		t.Fatalf("timeline length = %d, want 1", len(incident.Timeline))
	}
	if !incident.Timeline[0].At.Equal(incident.CreatedAt) {
		t.Error("timeline entry should be stamped at creation")
	}
	if !strings.HasPrefix(incident.ID, "inc_") {
		t.Errorf("id = %q, want inc_ prefix", incident.ID)
	}
}

func TestWriteReport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "reports", "2025", "posture.json")

	r := NewReporter(fullOnConfig(), WithClock(fixedClock()))
	report := r.Posture(context.Background())

	if err := WriteReport(path, report); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "\n  \"generated_at\"") {
		t.Error("report should be pretty-printed")
	}

	var decoded PostureReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Score != report.Score || decoded.Grade != report.Grade {
		t.Errorf("round trip lost score/grade: %d/%q", decoded.Score, decoded.Grade)
	}
}
