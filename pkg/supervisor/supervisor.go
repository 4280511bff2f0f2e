// Package supervisor 实现 combo 的多进程模型
//
// 本模块负责：
// - Controller：master 的生命周期状态机和客户端命令（stop/shutdown/restart/status）
// - Pool：worker 的创建、监控、重建和异常退出保护
// - ExecSpawner：以 worker 身份重新执行当前程序
// - RunWorker：worker 进程一侧的运行逻辑
//
// 依赖：
// - pkg/pidfile: 运行目录中的 PID 文件
// - pkg/probe: 进程存活探测
// - pkg/client: 跨进程信号投递
// - pkg/codec: master 与 worker 之间的消息
//
// 架构说明：
//
//	master 中只有一个事件循环 goroutine 修改 Pool 和 Controller 的状态。
//	信号、子进程状态流、启动超时、配置文件监控都通过 channel 进入事件循环。
//
// 文件组织：
//   - supervisor.go：Controller 和事件循环
//   - pool.go：worker 表和退出处理
//   - spawner.go：子进程启动和监控
//   - worker.go：worker 进程
//   - status.go：状态查询输出
//   - daemon.go：后台运行
//   - watcher.go：roots 文件监控
//   - metrics.go / prometheus.go：指标
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"combo/pkg/client"
	"combo/pkg/codec"
	"combo/pkg/config"
	"combo/pkg/logger"
	"combo/pkg/pidfile"
	"combo/pkg/probe"

	"go.uber.org/zap"
)

type ControllerState int32

const (
	StateInitializing ControllerState = iota
	StateForking
	StateRunning
	StateDisconnecting
	StateTerminated
	StateProbing
)

func (s ControllerState) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateForking:
		return "Forking"
	case StateRunning:
		return "Running"
	case StateDisconnecting:
		return "Disconnecting"
	case StateTerminated:
		return "Terminated"
	case StateProbing:
		return "Probing"
	default:
		return "Unknown"
	}
}

// Controller 是 master 进程的核心控制器，也是客户端命令的入口
//
// 字段说明：
//
//	cfg: 启动后不再修改的配置
//	pids: 运行目录中的 PID 文件
//	spawner: 为 nil 时 Listen 绑定端口并使用 ExecSpawner
//	signals: 为 nil 时 Listen 通过 signal.Notify 注册 master 信号
type Controller struct {
	cfg      *config.Config
	pids     *pidfile.Store
	probe    probe.Prober
	signaler *client.Signaler
	spawner  Spawner
	metrics  MetricsCollector
	out      io.Writer
	logger   *zap.SugaredLogger

	state   atomic.Int32
	signals <-chan os.Signal
	events  chan Event
	reload  chan struct{}
	done    chan struct{}
	pool    *Pool
}

type Option func(*Controller)

func WithSpawner(s Spawner) Option {
	return func(c *Controller) {
		c.spawner = s
	}
}

func WithProbe(p probe.Prober) Option {
	return func(c *Controller) {
		c.probe = p
	}
}

// WithOutput sets where operator-facing messages go. Defaults to stderr.
func WithOutput(w io.Writer) Option {
	return func(c *Controller) {
		c.out = w
	}
}

func WithMetrics(m MetricsCollector) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithSignals feeds master signals from ch instead of the OS.
func WithSignals(ch <-chan os.Signal) Option {
	return func(c *Controller) {
		c.signals = ch
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController 创建 Controller
//
// 参数：
//
//	cfg: 已经加载完成的配置
//	opts: 可选项，测试中用于替换 Spawner、探测器和信号来源
//
// 示例：
//
//	c := supervisor.NewController(config.GetConfig())
//	if err := c.Listen(ctx); err != nil {
//	    os.Exit(1)
//	}
func NewController(cfg *config.Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:     cfg,
		pids:    pidfile.NewStore(cfg.RunDir, cfg.MasterName),
		metrics: NoopMetrics{},
		out:     os.Stderr,
		events:  make(chan Event, 64),
		reload:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logger.Logging("master")
	}
	if c.probe == nil {
		c.probe = probe.New()
	}

	c.signaler = client.NewSignaler(c.pids, client.WithOutput(c.out))

	return c
}

func (c *Controller) State() ControllerState {
	return ControllerState(c.state.Load())
}

func (c *Controller) setState(to ControllerState) {
	from := ControllerState(c.state.Swap(int32(to)))
	if from == to {
		return
	}

	c.metrics.ControllerState(from, to)
	c.logger.Debugf("Master state %s -> %s", from, to)
}

// emit 是子进程 goroutine 向事件循环投递事件的唯一入口，事件循环结束后直接丢弃
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Listen 以 master 身份运行，直到所有 worker 退出
//
// 启动步骤：
//  1. 创建运行目录并写入 master 的 PID 文件，失败时直接返回
//  2. 绑定端口（未指定 Spawner 时），注册信号
//  3. 启动 cfg.Workers 个 worker，进入 Running 状态
//  4. 运行事件循环
//
// 返回：
//
//	nil: 收到 SIGTERM/SIGINT 或 ctx 结束后所有 worker 已经退出
//	ErrHardStopped: 收到 SIGQUIT
//	ErrFlameoutExceeded: worker 异常退出次数超过阈值
//	其他错误: 启动失败
//
// 注意事项：
//
//	PID 文件不是互斥锁，两个几乎同时启动的 master 可能都会运行；
//	发现 PID 文件指向存活进程时只记录警告
func (c *Controller) Listen(ctx context.Context) error {
	defer close(c.done)

	c.setState(StateInitializing)

	if err := c.pids.EnsureDir(); err != nil {
		return err
	}

	if pid, err := c.pids.ReadMaster(); err == nil && pid != os.Getpid() && c.probe.IsAlive(pid) {
		c.logger.Warnf("Pidfile %s points at a live process (PID %d), starting anyway", c.pids.Path(c.pids.MasterName()), pid)
	}

	if err := c.pids.Write(c.pids.MasterName(), os.Getpid()); err != nil {
		return err
	}

	spawner := c.spawner
	if spawner == nil {
		ln, err := bindListener(c.cfg.Port)
		if err != nil {
			c.removeMasterPid()
			return err
		}
		defer ln.Close()

		spawner, err = NewExecSpawner(ln)
		if err != nil {
			c.removeMasterPid()
			return err
		}
	}

	if c.signals == nil {
		ch := make(chan os.Signal, 4)
		signal.Notify(ch, codec.MasterSignals...)
		defer signal.Stop(ch)
		c.signals = ch
	}

	auxCtx, cancelAux := context.WithCancel(ctx)
	defer cancelAux()

	c.startAux(auxCtx)

	c.pool = NewPool(spawner, c.pids, c.emit,
		WithLaunchTimeout(c.cfg.LaunchTimeout),
		WithPoolMetrics(c.metrics),
		WithPoolLogger(c.logger.Named("pool")),
	)

	c.setState(StateForking)
	for i := 0; i < c.cfg.Workers; i++ {
		if _, err := c.pool.Fork(); err != nil {
			c.hardStop()
			return err
		}
	}

	c.setState(StateRunning)
	c.logger.Infof("combo master started with %d workers on port %d", c.cfg.Workers, c.cfg.Port)

	return c.loop(ctx)
}

func (c *Controller) startAux(ctx context.Context) {
	if c.cfg.MetricsAddr != "" {
		pm, ok := c.metrics.(*PrometheusMetrics)
		if !ok {
			pm = NewPrometheusMetrics("")
			c.metrics = pm
		}
		go serveMetrics(ctx, c.cfg.MetricsAddr, pm, c.logger.Named("metrics"))
	}

	if c.cfg.WatchRoots && c.cfg.RootsFile != "" {
		w, err := NewRootsWatcher(c.cfg.RootsFile)
		if err != nil {
			c.logger.Errorf("Cannot watch %s: %v", c.cfg.RootsFile, err)
			return
		}

		go func() {
			defer w.Close()
			w.Run(ctx, c.reload)
		}()
	}
}

func (c *Controller) loop(ctx context.Context) error {
	var (
		drained   <-chan struct{}
		deadline  <-chan time.Time
		cancelled = ctx.Done()
	)

	for {
		select {
		case ev := <-c.events:
			if err := c.pool.Handle(ev); err != nil {
				c.logger.Errorf("Giving up: %v", err)
				c.hardStop()
				return err
			}

		case sig := <-c.signals:
			switch c.dispatch(sig) {
			case codec.ActionShutdown:
				if drained == nil {
					drained, deadline = c.beginShutdown()
				}
			case codec.ActionStop:
				c.hardStop()
				return ErrHardStopped
			}

		case <-cancelled:
			cancelled = nil
			if drained == nil {
				drained, deadline = c.beginShutdown()
			}

		case <-c.reload:
			if c.State() == StateRunning {
				c.logger.Infof("Roots file changed, restarting %d workers", c.pool.Signal(syscall.SIGUSR2))
			}

		case <-deadline:
			deadline = nil
			c.logger.Warnf("%d workers still running after %v, killing them", c.pool.Len(), c.cfg.ShutdownTimeout)
			c.pool.KillAll()

		case <-drained:
			c.removeMasterPid()
			c.setState(StateTerminated)
			c.logger.Info("combo master stopped")
			return nil
		}
	}
}

// dispatch 是 master 中唯一解释信号的地方
func (c *Controller) dispatch(sig os.Signal) codec.ActionCtl {
	action := codec.SignalAction(sig)
	if action == codec.ActionNone {
		c.logger.Debugf("Ignoring signal %v", sig)
		return action
	}

	c.logger.Infof("Received %v, %s", sig, codec.ActionResponse[action])

	if action == codec.ActionRestart {
		n := c.pool.Signal(syscall.SIGUSR2)
		c.logger.Infof("Sent %v to %d workers", syscall.SIGUSR2, n)
	}

	return action
}

func (c *Controller) beginShutdown() (<-chan struct{}, <-chan time.Time) {
	c.setState(StateDisconnecting)
	drained := c.pool.DisconnectAll()

	if c.cfg.ShutdownTimeout > 0 {
		return drained, time.After(c.cfg.ShutdownTimeout)
	}

	return drained, nil
}

// hardStop 尽力删除所有 PID 文件并强制杀死 worker
func (c *Controller) hardStop() {
	if err := c.pids.RemoveWorkerPidFiles(); err != nil {
		c.logger.Warn(err)
	}
	c.removeMasterPid()

	if c.pool != nil {
		c.pool.KillAll()
	}

	c.setState(StateTerminated)
}

func (c *Controller) removeMasterPid() {
	if err := c.pids.Remove(c.pids.MasterName()); err != nil {
		c.logger.Warn(err)
	}
}

// Stop 强制停止正在运行的 master
//
// 先删除 worker 的 PID 文件，再由 Signaler 删除 master 的 PID 文件并发送 SIGKILL。
// worker 通过控制管道感知 master 退出后自行结束。
func (c *Controller) Stop() error {
	if err := c.pids.RemoveWorkerPidFiles(); err != nil {
		c.logger.Warn(err)
	}

	return c.send(codec.ActionStop)
}

// Shutdown 请求正在运行的 master 优雅关闭
func (c *Controller) Shutdown() error {
	return c.send(codec.ActionShutdown)
}

// Restart 请求正在运行的 master 重启所有 worker
func (c *Controller) Restart() error {
	return c.send(codec.ActionRestart)
}

// send 投递信号，master 没有运行不算错误（提示信息已经输出）
func (c *Controller) send(action codec.ActionCtl) error {
	err := c.signaler.Send(action)
	if errors.Is(err, ErrNotRunning) {
		return nil
	}

	return err
}

// Status 查询 master 和各个 worker 的存活状态
//
// 参数：
//
//	w: 不为 nil 时按 "名称 PID alive|dead" 的格式逐行输出
//
// 返回：
//
//	*codec.StatusReport: 查询结果
//	error: master 的 PID 文件不存在时返回 ErrNotRunning
//
// 注意事项：
//
//	只读操作，不会创建运行目录，也不会删除残留的 PID 文件
func (c *Controller) Status(w io.Writer) (*codec.StatusReport, error) {
	prev := c.State()
	c.setState(StateProbing)
	defer c.setState(prev)

	pid, err := c.pids.ReadMaster()
	if err != nil {
		if errors.Is(err, pidfile.ErrNotFound) {
			_, _ = fmt.Fprintln(c.out, "combo master not running")
			return nil, ErrNotRunning
		}
		return nil, err
	}

	report := &codec.StatusReport{
		Master:  c.procInfo(c.pids.MasterName(), pid),
		Workers: []codec.ProcInfo{},
	}

	files, err := c.pids.ListWorkerPidFiles()
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		name := strings.TrimSuffix(f, ".pid")

		pid, err := c.pids.Read(name)
		if err != nil {
			c.logger.Warn(err)
			continue
		}
		report.Workers = append(report.Workers, c.procInfo(name, pid))
	}

	if w != nil {
		PrintStatus(w, report)
	}

	return report, nil
}

func (c *Controller) procInfo(name string, pid int) codec.ProcInfo {
	status := codec.ProcessDead
	if c.probe.IsAlive(pid) {
		status = codec.ProcessAlive
	}

	return codec.ProcInfo{Name: name, Pid: pid, Status: status}
}

// bindListener 在 master 中绑定端口，返回的文件会传给每个 worker
func bindListener(port int) (*os.File, error) {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("cannot listen on port %d: %w", port, err)
	}
	defer ln.Close()

	f, err := ln.(*net.TCPListener).File()
	if err != nil {
		return nil, fmt.Errorf("cannot share listener: %w", err)
	}

	return f, nil
}
