// proofctl - control client for the proofd daemon
//
// Talks to a running daemon over its websocket bridge:
//
//	proofctl status                Show daemon status
//	proofctl toggle <flag> <on|off>  Flip a runtime feature flag
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "proofctl",
		Short: "Control a running proofd daemon",
	}

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newToggleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
