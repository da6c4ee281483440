// proofd - background proofreading daemon
//
// proofd watches text surfaces reported by host integrations (editor
// plugins, browser extensions) over a local websocket bridge, runs them
// through an external grammar/spell engine, and streams overlay decorations
// and auto-corrections back.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "proofd",
		Short: "Background proofreading daemon",
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
