package service

import (
	"context"
	"log/slog"

	"github.com/warden-platform/warden-core/internal/domain/compliance"
	"github.com/warden-platform/warden-core/internal/domain/fault"
)

// Report kinds accepted by Export.
const (
	ReportPosture  = "posture"
	ReportOWASP    = "owasp"
	ReportSOC2     = "soc2"
	ReportISO27001 = "iso27001"
)

// ComplianceService fronts the reporter: report generation with logging, and
// JSON export to disk.
type ComplianceService struct {
	reporter *compliance.Reporter
	logger   *slog.Logger
}

// NewComplianceService creates a ComplianceService over the given reporter.
func NewComplianceService(reporter *compliance.Reporter, logger *slog.Logger) *ComplianceService {
	return &ComplianceService{reporter: reporter, logger: logger}
}

// Posture generates the security posture report.
func (s *ComplianceService) Posture(ctx context.Context) *compliance.PostureReport {
	report := s.reporter.Posture(ctx)
	s.logger.Info("posture report generated",
		"score", report.Score,
		"grade", report.Grade,
	)
	return report
}

// OWASP generates the agentic top-10 table.
func (s *ComplianceService) OWASP() *compliance.OWASPReport {
	return s.reporter.OWASP()
}

// SOC2 generates the trust-services evidence package for the trailing period.
func (s *ComplianceService) SOC2(days int) *compliance.SOC2Report {
	return s.reporter.SOC2(days)
}

// ISO27001 generates the Annex A control mapping.
func (s *ComplianceService) ISO27001() *compliance.ISOReport {
	return s.reporter.ISO27001()
}

// Incident opens a templated incident record.
func (s *ComplianceService) Incident(incidentType, severity, description string) *compliance.IncidentReport {
	report := s.reporter.Incident(incidentType, severity, description)
	s.logger.Info("incident report created",
		"incident_id", report.ID,
		"type", incidentType,
		"severity", severity,
	)
	return report
}

// Export generates the named report kind and writes it as pretty JSON at
// path. The days parameter only applies to soc2.
func (s *ComplianceService) Export(ctx context.Context, kind, path string, days int) error {
	var report any
	switch kind {
	case ReportPosture:
		report = s.Posture(ctx)
	case ReportOWASP:
		report = s.OWASP()
	case ReportSOC2:
		report = s.SOC2(days)
	case ReportISO27001:
		report = s.ISO27001()
	default:
		return fault.Newf(fault.InvalidArgument, "unknown report kind %q", kind)
	}

	if err := compliance.WriteReport(path, report); err != nil {
		return err
	}
	s.logger.Info("compliance report exported",
		"kind", kind,
		"path", path,
	)
	return nil
}
