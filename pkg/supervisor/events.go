package supervisor

import (
	"fmt"
	"syscall"
)

type EventKind int

const (
	EventListening EventKind = iota + 1
	EventReloading
	EventExit
	EventLaunchTimeout
)

func (k EventKind) String() string {
	switch k {
	case EventListening:
		return "listening"
	case EventReloading:
		return "reloading"
	case EventExit:
		return "exit"
	case EventLaunchTimeout:
		return "launch-timeout"
	default:
		return "unknown"
	}
}

// Event 是子进程相关的 goroutine 投递给事件循环的消息
//
// Code 和 Signal 只对 EventExit 有意义：Signal 非零表示进程被信号终止，
// Err 非零表示无法获得退出状态。
type Event struct {
	Kind   EventKind
	ID     int
	Pid    int
	Addr   string
	Code   int
	Signal syscall.Signal
	Err    error
}

// Failed reports whether an exit event describes an abnormal termination.
func (e Event) Failed() bool {
	return e.Signal != 0 || e.Code != 0 || e.Err != nil
}

func (e Event) exitReason() string {
	switch {
	case e.Err != nil:
		return e.Err.Error()
	case e.Signal != 0:
		return fmt.Sprintf("signal %v", e.Signal)
	default:
		return fmt.Sprintf("code %d", e.Code)
	}
}
