package cmd

import (
	"os"

	"combo/pkg/config"
	"combo/pkg/supervisor"

	"github.com/spf13/cobra"
)

// osExit 在测试中替换
var osExit = os.Exit

// newController 创建只用于发送控制信号或查询状态的 Controller，提示信息写到命令的 stderr
func newController(cmd *cobra.Command) *supervisor.Controller {
	return supervisor.NewController(config.GetConfig(), supervisor.WithOutput(cmd.ErrOrStderr()))
}
