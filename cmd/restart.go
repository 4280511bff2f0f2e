package cmd

import (
	"github.com/spf13/cobra"
)

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Reload every worker in place",
	RunE: func(cmd *cobra.Command, args []string) error {
		return newController(cmd).Restart()
	},
}

func init() {
	rootCmd.AddCommand(restartCmd)
}
