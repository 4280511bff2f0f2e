package supervisor

import (
	"errors"

	"combo/pkg/client"
)

var (
	// ErrNotRunning 表示没有正在运行的 master
	ErrNotRunning = client.ErrNotRunning

	// ErrFlameoutExceeded worker 异常退出次数超过阈值，master 放弃并以非零状态退出
	ErrFlameoutExceeded = errors.New("too many worker failures")

	// ErrHardStopped master 收到 SIGQUIT 后强制终止了所有 worker
	ErrHardStopped = errors.New("master stopped abruptly")
)
