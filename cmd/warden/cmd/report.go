package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/warden-platform/warden-core/internal/adapter/outbound/journal"
	"github.com/warden-platform/warden-core/internal/config"
	"github.com/warden-platform/warden-core/internal/domain/compliance"
	"github.com/warden-platform/warden-core/internal/service"
)

var (
	reportKind string
	reportOut  string
	reportDays int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write a compliance report to a file",
	Long: `Generate a compliance report from the current configuration and the
audit journal, and write it as pretty-printed JSON.

The command opens the journal read-only and verifies the hash chain as part
of report generation; it does not need (and does not talk to) a running
daemon. Posture grades reflect the security toggles in the config file, so
run it with the same config the daemon uses.

Report kinds:
  posture     Security posture score and per-check findings
  owasp       OWASP agentic top-10 coverage table
  soc2        Trust-services evidence for the trailing period (see --days)
  iso27001    ISO 27001 Annex A control mapping

Examples:
  # Posture report for the current config
  warden report --kind posture --out posture.json

  # SOC 2 evidence for the last quarter
  warden report --kind soc2 --days 90 --out soc2-q2.json`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportKind, "kind", "k", "posture", "Report kind: posture, owasp, soc2, iso27001")
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Output file path (required)")
	reportCmd.Flags().IntVar(&reportDays, "days", 30, "Evidence period in days (soc2 only)")
	_ = reportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// One-shot command: keep stderr quiet unless something goes wrong.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fileJournal, err := journal.NewFileJournal(journal.JournalConfig{
		Dir:       cfg.Ledger.Dir,
		CacheSize: cfg.Ledger.CacheSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open audit journal: %w", err)
	}
	ledger, err := service.NewLedgerService(ctx, fileJournal, logger)
	if err != nil {
		return fmt.Errorf("failed to open audit ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()

	reporter := compliance.NewReporter(compliance.Config{
		GatewayHost:            cfg.Server.GatewayHost,
		SandboxEnabled:         cfg.Security.SandboxEnabled,
		PolicyEngineEnabled:    cfg.Security.PolicyEngineEnabled,
		CanaryTokensEnabled:    cfg.Security.CanaryTokensEnabled,
		EgressFilteringEnabled: cfg.Security.EgressFilteringEnabled,
		AuditLoggingEnabled:    cfg.Security.AuditLoggingEnabled,
		SkillSignatureRequired: cfg.Security.SkillSignatureRequired,
	}, compliance.WithVerifier(ledger))
	reports := service.NewComplianceService(reporter, logger)

	if err := reports.Export(ctx, reportKind, reportOut, reportDays); err != nil {
		return fmt.Errorf("failed to export report: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Report written to %s\n", reportOut)
	return nil
}
