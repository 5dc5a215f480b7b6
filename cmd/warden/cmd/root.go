// Package cmd provides the CLI commands for the Warden security core.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warden-platform/warden-core/internal/config"
)

var cfgFile string
var stateFilePath string

var rootCmd = &cobra.Command{
	Use:   "warden",
	Short: "Warden - security core for multi-user agent platforms",
	Long: `Warden is the security core of a multi-user agent platform.

It holds the identity registry, the role catalog, API keys, teams, and the
tamper-evident audit ledger, and answers authorization decisions for the
surrounding gateway. A threat detector watches authentication, rate, tool,
and data-volume patterns; compliance reports grade the deployment posture.

Quick start:
  1. Create a config file: warden.yaml
  2. Run: warden serve

Configuration:
  Config is loaded from warden.yaml in the current directory,
  $HOME/.warden/, or /etc/warden/.

  Environment variables can override config values with the WARDEN_ prefix.
  Example: WARDEN_SERVER_GATEWAY_PORT=7800

Commands:
  serve       Run the security core daemon
  stop        Stop the running daemon
  report      Write a compliance report to a file
  reset       Reset to clean state (remove state.json)
  hash-key    Generate SHA256 hash for an API key
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./warden.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateFilePath, "state", "", "path to state.json file (default: ~/.warden/state.json)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
