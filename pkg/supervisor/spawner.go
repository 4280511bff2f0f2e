package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"combo/pkg/codec"
	"combo/pkg/logger"
	"combo/pkg/utils/constants"

	"go.uber.org/zap"
)

// Child 是 Pool 持有的子进程句柄
type Child interface {
	Pid() int
	Signal(sig syscall.Signal) error
	// Disconnect 关闭控制管道，worker 读到 EOF 后优雅退出
	Disconnect() error
	Kill() error
}

// Spawner 启动第 id 个 worker
//
// 实现必须保证同一个 worker 的事件按发生顺序调用 emit，
// 并且 EventExit 是该 worker 的最后一个事件。
type Spawner interface {
	Spawn(id int, emit func(Event)) (Child, error)
}

// ExecSpawner 以 worker 身份重新执行当前程序
//
// 子进程继承的文件描述符：
//
//	fd 3: 状态管道（worker 写，master 读），CBOR 消息流
//	fd 4: 控制管道（master 写，worker 读），EOF 表示断开
//	fd 5: master 绑定的监听 socket
type ExecSpawner struct {
	exe      string
	args     []string
	env      []string
	listener *os.File
	logger   *zap.SugaredLogger
}

type SpawnerOption func(*ExecSpawner)

// WithCommand overrides the executable and its arguments.
func WithCommand(exe string, args ...string) SpawnerOption {
	return func(s *ExecSpawner) {
		s.exe = exe
		s.args = args
	}
}

// WithEnv appends extra KEY=VALUE entries to every worker's environment.
func WithEnv(env ...string) SpawnerOption {
	return func(s *ExecSpawner) {
		s.env = append(s.env, env...)
	}
}

func NewExecSpawner(listener *os.File, opts ...SpawnerOption) (*ExecSpawner, error) {
	s := &ExecSpawner{
		listener: listener,
		logger:   logger.Logging("spawner"),
	}

	if len(os.Args) > 1 {
		s.args = os.Args[1:]
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.exe == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("cannot locate executable: %w", err)
		}
		s.exe = exe
	}

	return s, nil
}

func (s *ExecSpawner) environ(id int) []string {
	prefix := constants.WorkerIDEnv + "="

	env := make([]string, 0, len(os.Environ())+len(s.env)+1)
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, prefix) {
			env = append(env, kv)
		}
	}
	env = append(env, s.env...)

	return append(env, prefix+strconv.Itoa(id))
}

func (s *ExecSpawner) Spawn(id int, emit func(Event)) (Child, error) {
	statusR, statusW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create status pipe: %w", err)
	}

	ctrlR, ctrlW, err := os.Pipe()
	if err != nil {
		_ = statusR.Close()
		_ = statusW.Close()
		return nil, fmt.Errorf("failed to create control pipe: %w", err)
	}

	cmd := exec.Command(s.exe, s.args...)
	cmd.Env = s.environ(id)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{statusW, ctrlR}
	if s.listener != nil {
		cmd.ExtraFiles = append(cmd.ExtraFiles, s.listener)
	}

	// 终端的 Ctrl-C 只发给 master，由 master 决定如何关闭 worker
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	err = cmd.Start()

	// 子进程已经持有自己的副本
	_ = statusW.Close()
	_ = ctrlR.Close()

	if err != nil {
		_ = statusR.Close()
		_ = ctrlW.Close()
		return nil, fmt.Errorf("failed to start worker %d: %w", id, err)
	}

	child := &execChild{
		cmd:  cmd,
		ctrl: ctrlW,
	}

	go s.monitor(id, child, statusR, emit)

	return child, nil
}

// monitor 读取状态管道直到 EOF，然后等待进程退出
//
// 读完状态流再 Wait 保证 EventExit 总是排在该 worker 的其他事件之后。
func (s *ExecSpawner) monitor(id int, child *execChild, status *os.File, emit func(Event)) {
	pid := child.Pid()
	reader := codec.NewMsgReader(status)

	for {
		msg, err := reader.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Warnf("Worker %d status stream: %v", id, err)
			}
			break
		}

		switch msg.Kind {
		case codec.MsgListening:
			emit(Event{Kind: EventListening, ID: id, Pid: pid, Addr: msg.Addr})
		case codec.MsgReloading:
			emit(Event{Kind: EventReloading, ID: id, Pid: pid})
		default:
			s.logger.Debugf("Worker %d sent unknown message %v", id, msg.Kind)
		}
	}
	_ = status.Close()

	err := child.cmd.Wait()
	_ = child.Disconnect()

	emit(exitEvent(id, pid, err))
}

func exitEvent(id, pid int, err error) Event {
	ev := Event{Kind: EventExit, ID: id, Pid: pid}
	if err == nil {
		return ev
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		ev.Err = err
		return ev
	}

	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		ev.Signal = ws.Signal()
		return ev
	}

	ev.Code = exitErr.ExitCode()
	return ev
}

type execChild struct {
	cmd  *exec.Cmd
	ctrl *os.File
	once sync.Once
}

func (c *execChild) Pid() int {
	return c.cmd.Process.Pid
}

func (c *execChild) Signal(sig syscall.Signal) error {
	return c.cmd.Process.Signal(sig)
}

func (c *execChild) Disconnect() error {
	var err error
	c.once.Do(func() {
		err = c.ctrl.Close()
	})

	return err
}

func (c *execChild) Kill() error {
	err := c.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}

	return err
}
