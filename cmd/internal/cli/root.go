// Package cli defines the qrauth command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand returns the qrauth root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "qrauth",
		Short: "QR code passwordless login server",
		Long: `qrauth issues short-lived login sessions that a signed-in device
approves by scanning a QR code. The waiting client polls or watches the
session until it is authenticated, cancelled, or expired.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		NewServeCommand(),
		NewDemoCommand(),
	)
	return root
}
