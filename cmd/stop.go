package cmd

import (
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Kill the master immediately, workers exit once they lose it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newController(cmd).Stop()
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
