// Package cmd implements the a2a-coordinator command-line interface: the server
// entry point and its supporting subcommands.
package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "a2a-coordinator",
	Short: "Agent-to-Agent coordination server",
	Long:  longRoot,
}

// Execute is the CLI's entry point.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file to layer over the embedded defaults (optional)",
	)
}

var longRoot = `
a2a-coordinator runs an Agent-to-Agent (A2A) coordination server: JSON-RPC task
lifecycle management, a pub/sub broker, SSE streaming, and a durable work
queue for external worker processes.
`
