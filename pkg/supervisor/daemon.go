package supervisor

import (
	"os"

	"combo/pkg/config"

	"github.com/gnuos/daemon"
)

// Daemonize 把当前进程转为后台运行
//
// 返回：
//
//	bool: true 表示当前是父进程，应当立即退出；false 表示当前是后台子进程，继续运行 master
//	error: 无法创建后台进程
//
// 注意事项：
//  1. 不使用 daemon 库的 PID 文件，master 的 PID 文件由 Controller.Listen 在子进程中写入
//  2. 后台进程没有终端，调用方需要打开文件日志
func Daemonize(cfg *config.Config) (bool, error) {
	wd, err := os.Getwd()
	if err != nil {
		wd = "/"
	}

	if err := os.MkdirAll(cfg.RunDir, 0755); err != nil {
		return false, err
	}

	ctx := &daemon.Context{
		WorkDir: wd,
		Umask:   027,
		Args:    os.Args,
	}

	d, err := ctx.Reborn()
	if err != nil {
		return false, err
	}

	return d != nil, nil
}
