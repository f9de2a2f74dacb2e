package auth

import (
	"github.com/spf13/cobra"
)

// Command groups authentication helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers (RADIUS login test, dev tokens)",
	}

	cmd.AddCommand(loginCommand())
	cmd.AddCommand(devTokenCommand())
	return cmd
}
