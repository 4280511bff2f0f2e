// Package client 负责从短生命周期的命令行进程向正在运行的 master 投递控制信号
//
// 客户端和 master 之间没有 socket 或 RPC 通道，唯一的协调媒介是运行目录中的
// PID 文件和 OS 信号。
package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"combo/pkg/codec"
	"combo/pkg/logger"
	"combo/pkg/pidfile"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrNotRunning 表示 master 没有运行：PID 文件不存在，或者记录的进程已经退出
var ErrNotRunning = errors.New("combo master not running")

type Signaler struct {
	pids   *pidfile.Store
	kill   func(pid int, sig syscall.Signal) error
	out    io.Writer
	logger *zap.SugaredLogger
}

type Option func(*Signaler)

func WithKill(fn func(pid int, sig syscall.Signal) error) Option {
	return func(s *Signaler) {
		s.kill = fn
	}
}

// WithOutput sets where operator-facing messages go. Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(s *Signaler) {
		s.out = w
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Signaler) {
		s.logger = l
	}
}

func NewSignaler(pids *pidfile.Store, opts ...Option) *Signaler {
	s := &Signaler{
		pids: pids,
		kill: unix.Kill,
		out:  os.Stderr,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Logging("client")
	}

	return s
}

// Send 把动作对应的信号投递给 master
func (s *Signaler) Send(action codec.ActionCtl) error {
	sig := codec.ActionSignal(action)
	if sig == 0 {
		return fmt.Errorf("action %s has no signal", action)
	}

	return s.SendTo(s.pids.MasterName(), sig)
}

// SendTo 读取 name 对应的 PID 文件并向该进程发送信号
//
// 参数：
//
//	name: PID 文件的角色名，通常是 master 名称
//	sig: 要发送的信号
//
// 返回：
//
//	error: PID 文件不存在或进程已经不存在时返回 ErrNotRunning，
//	       其他失败（例如 EPERM）包装后原样返回
//
// 注意事项：
//  1. SIGKILL 无法被目标进程拦截，因此在发送之前先删除 PID 文件
//  2. 其他信号遇到残留的 PID 文件时不删除，留给操作人员处理
func (s *Signaler) SendTo(name string, sig syscall.Signal) error {
	pid, err := s.pids.Read(name)
	if err != nil {
		if errors.Is(err, pidfile.ErrNotFound) {
			s.notRunning(name)
			return ErrNotRunning
		}
		return err
	}

	if sig == syscall.SIGKILL {
		if err := s.pids.Remove(name); err != nil {
			s.logger.Warnf("Cannot remove pidfile of %s: %v", name, err)
		}
	}

	s.logger.Debugf("Sending %v to %s (PID %d)", sig, name, pid)

	err = s.kill(pid, sig)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		s.notRunning(name)
		return ErrNotRunning
	default:
		return fmt.Errorf("send %v to %s (PID %d): %w", sig, name, pid, err)
	}
}

func (s *Signaler) notRunning(name string) {
	role := name
	if name == s.pids.MasterName() {
		role = "master"
	}

	_, _ = fmt.Fprintf(s.out, "combo %s not running\n", role)
}
