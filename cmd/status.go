package cmd

import (
	"encoding/json"
	"errors"

	"combo/pkg/supervisor"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the master and its workers are alive",
	RunE:  execStatusCmd,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}

// execStatusCmd master 没有运行时以状态码 1 退出
func execStatusCmd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctl := newController(cmd)

	if !statusJSON {
		_, err := ctl.Status(out)
		if errors.Is(err, supervisor.ErrNotRunning) {
			osExit(1)
			return nil
		}
		return err
	}

	report, err := ctl.Status(nil)
	if errors.Is(err, supervisor.ErrNotRunning) {
		osExit(1)
		return nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
