package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warden-platform/warden-core/internal/domain/apikey"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [api-key]",
	Short: "Generate SHA256 hash for an API key",
	Long: `Generate a SHA256 hash of an API key for use in a seed file.

The output format is "sha256:<hex>" which can be directly used
in the api_keys.key_hash field of a seed file.

Example:
  warden hash-key "sk_my-issued-key"
  # Output: sha256:7d5e8c...

Security note: The key will appear in shell history.
Consider clearing history after use or using an environment variable:
  warden hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sha256:%s\n", apikey.HashKey(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
