// Command grantrelay runs the membership-to-policy relay service.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "grantrelay",
	Short: "Relay organization-membership webhooks into a policy backend",
	Long: `grantrelay persists every membership webhook it receives, delivers it to the
authorization-policy backend, and retries undelivered events on a fixed
interval until they succeed or expire.

Configuration is read from GRANTRELAY_* environment variables.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, replayCmd, pendingCmd, secretCmd, signCmd)
}
