package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the wificore admin CLI. Subcommands (auth, tenant, etc.) are attached here.
var rootCmd = &cobra.Command{
	Use:           "wificore",
	Short:         "WiFiCore admin CLI",
	Long:          "Administrative utilities for WiFiCore (platform bootstrap, tenants, RADIUS users, session tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
