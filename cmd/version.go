package cmd

import (
	"fmt"
	"runtime"

	"combo/pkg/utils"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run:   execVersionCmd,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func execVersionCmd(cmd *cobra.Command, args []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n", utils.RuntimeModuleName, utils.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
