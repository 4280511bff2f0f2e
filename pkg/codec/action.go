package codec

import (
	"os"
	"syscall"
)

// ActionCtl 是跨进程控制协议中的动作，每个动作对应一个 OS 信号
type ActionCtl int

const (
	ActionNone ActionCtl = iota
	ActionStart
	ActionStop
	ActionShutdown
	ActionRestart
	ActionStatus
)

func (a ActionCtl) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionShutdown:
		return "shutdown"
	case ActionRestart:
		return "restart"
	case ActionStatus:
		return "status"
	default:
		return "none"
	}
}

var ActionResponse = map[ActionCtl]string{
	ActionStop:     "stopping abruptly",
	ActionShutdown: "shutting down",
	ActionRestart:  "restarting workers",
}

// ActionSignal 返回客户端向 master 投递该动作时使用的信号
//
// stop 使用 SIGKILL，无法被拦截，因此所有清理工作必须在发送之前完成；
// start 和 status 不需要信号，返回 0。
func ActionSignal(a ActionCtl) syscall.Signal {
	switch a {
	case ActionStop:
		return syscall.SIGKILL
	case ActionShutdown:
		return syscall.SIGTERM
	case ActionRestart:
		return syscall.SIGUSR2
	default:
		return 0
	}
}

// SignalAction 把 master 收到的信号解码为动作
//
//	SIGINT / SIGTERM -> ActionShutdown
//	SIGQUIT          -> ActionStop（master 内部的强制停止）
//	SIGUSR2          -> ActionRestart
func SignalAction(sig os.Signal) ActionCtl {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return ActionShutdown
	case syscall.SIGQUIT:
		return ActionStop
	case syscall.SIGUSR2:
		return ActionRestart
	default:
		return ActionNone
	}
}

// MasterSignals 是 master 需要监听的全部信号
var MasterSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGUSR2}
