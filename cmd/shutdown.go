package cmd

import (
	"github.com/spf13/cobra"
)

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the master to stop after its workers finish in-flight requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newController(cmd).Shutdown()
	},
}

func init() {
	rootCmd.AddCommand(shutdownCmd)
}
