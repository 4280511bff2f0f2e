package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the master and its workers (same as running without a command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMaster(cmd.Context())
	},
}

func init() {
	addMasterFlags(startCmd.Flags())
	rootCmd.AddCommand(startCmd)
}
