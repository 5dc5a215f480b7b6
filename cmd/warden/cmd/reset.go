package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warden-platform/warden-core/internal/config"
)

var (
	resetIncludeAudit bool
	resetForce        bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset Warden to a clean state",
	Long: `Reset Warden by removing persistent state files.

By default, only state.json (and its backup) is removed. This clears all
users, custom roles, teams, and API key records. On next start, Warden
boots fresh and replays the seed file if one is configured.

The audit ledger is tamper-evident history and is kept unless you pass
--include-audit. Removing it breaks the hash chain's continuity with any
exported compliance evidence.

Optional flags:
  --include-audit   Also remove the audit journal directory
  --force           Skip confirmation prompt

Examples:
  # Reset state only (interactive confirmation)
  warden reset

  # Reset everything without prompting
  warden reset --include-audit --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetIncludeAudit, "include-audit", false, "Also remove the audit journal directory")
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "Skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve state file path (same precedence as the serve command).
	statePath := stateFilePath
	if statePath == "" {
		statePath = os.Getenv("WARDEN_STATE_PATH")
	}
	if statePath == "" {
		statePath = cfg.State.Path
	}

	type target struct {
		path string
		desc string
	}
	targets := []target{
		{statePath, "state file"},
		{statePath + ".bak", "state backup"},
	}

	if resetIncludeAudit && cfg.Ledger.Dir != "" {
		targets = append(targets, target{cfg.Ledger.Dir, "audit journal directory"})
	}

	// Check what actually exists.
	var existing []target
	for _, t := range targets {
		if _, err := os.Stat(t.path); err == nil {
			existing = append(existing, t)
		}
	}

	if len(existing) == 0 {
		fmt.Fprintln(os.Stderr, "Nothing to reset — no state files found.")
		return nil
	}

	fmt.Fprintln(os.Stderr, "The following will be removed:")
	for _, t := range existing {
		fmt.Fprintf(os.Stderr, "  - %s (%s)\n", t.path, t.desc)
	}

	// Confirm unless --force.
	if !resetForce {
		fmt.Fprint(os.Stderr, "\nProceed? [y/N] ")
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck // interactive prompt, error irrelevant
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	var errors int
	for _, t := range existing {
		if err := os.RemoveAll(t.path); err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR removing %s: %v\n", t.path, err)
			errors++
		} else {
			fmt.Fprintf(os.Stderr, "  Removed %s\n", t.path)
		}
	}

	if errors > 0 {
		return fmt.Errorf("%d file(s) could not be removed", errors)
	}

	fmt.Fprintln(os.Stderr, "\nReset complete. Warden will start fresh on next launch.")
	return nil
}
