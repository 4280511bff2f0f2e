// Package probe checks whether a PID names a live process.
package probe

import (
	"errors"
	"syscall"

	"combo/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Prober reports liveness of a process.
type Prober interface {
	IsAlive(pid int) bool
}

// Probe 通过发送 0 号信号检查进程是否存活
//
// 判定规则：
//   - 发送成功：存活
//   - ESRCH：进程不存在，判定为死亡
//   - EPERM：进程存在但无权发送信号，记录警告，结果由 OnPermissionDenied 决定（默认存活）
//   - 其他错误：保守地判定为存活
type Probe struct {
	// OnPermissionDenied decides the result when the probe gets EPERM.
	OnPermissionDenied func(pid int) bool

	kill   func(pid int, sig syscall.Signal) error
	logger *zap.SugaredLogger
}

type Option func(*Probe)

// WithKill replaces the kill(2) call, mostly for tests.
func WithKill(fn func(pid int, sig syscall.Signal) error) Option {
	return func(p *Probe) {
		p.kill = fn
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Probe) {
		p.logger = l
	}
}

func WithPermissionPolicy(fn func(pid int) bool) Option {
	return func(p *Probe) {
		p.OnPermissionDenied = fn
	}
}

func New(opts ...Option) *Probe {
	p := &Probe{
		OnPermissionDenied: func(int) bool { return true },
		kill:               unix.Kill,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logger.Logging("probe")
	}

	return p
}

func (p *Probe) IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := p.kill(pid, syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, unix.ESRCH):
		return false
	case errors.Is(err, unix.EPERM):
		p.logger.Warnf("No permission to signal PID %d, the process cannot be managed by this user", pid)
		return p.OnPermissionDenied(pid)
	default:
		p.logger.Warnf("Probe of PID %d failed: %v", pid, err)
		return true
	}
}
