// Package utils
package utils

import (
	"os"
	"strconv"

	"combo/pkg/utils/constants"
)

const RuntimeModuleName = "combo"

// Version 在构建时通过 -ldflags "-X combo/pkg/utils.Version=..." 注入
var Version = "dev"

// WorkerID 返回当前进程的 worker 编号
//
// 返回：
//
//	int: worker 编号（从 1 开始）
//	bool: 当前进程是否由 master 以 worker 身份启动
//
// 说明：
//
//	master 通过环境变量 COMBO_WORKER_ID 标记重新执行的子进程，
//	进程角色在启动时确定，生命周期内不会改变
func WorkerID() (int, bool) {
	v, ok := os.LookupEnv(constants.WorkerIDEnv)
	if !ok {
		return 0, false
	}

	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}
