// Package cmd implements the dabctl operator commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dabctl",
	Short: "Operator tooling for the dab registry service",
	Long: `dabctl mints caller tokens for the dab HTTP API and inspects
snapshot files written by the server on shutdown.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}
