package supervisor

import (
	"fmt"
	"slices"
	"syscall"
	"time"

	"combo/pkg/codec"
	"combo/pkg/logger"
	"combo/pkg/pidfile"

	"go.uber.org/zap"
)

const (
	DefaultLaunchTimeout     = 2 * time.Second
	DefaultFlameoutThreshold = 20
)

// WorkerRecord 是 master 对一个 worker 的全部记录，只由 Pool 修改
type WorkerRecord struct {
	ID        int
	Pid       int
	State     codec.WorkerState
	Addr      string
	StartedAt time.Time

	disconnecting bool
	child         Child
	watchdog      *time.Timer
}

// WorkerInfo is a read-only snapshot of a WorkerRecord.
type WorkerInfo struct {
	ID            int
	Pid           int
	State         codec.WorkerState
	Disconnecting bool
}

// Pool 管理 worker 的创建、退出和重建
//
// Pool 不是并发安全的：所有方法都必须在同一个 goroutine（Controller 的事件循环）中调用。
// 子进程相关的 goroutine 只通过 emit 投递 Event，由事件循环转交给 Handle。
type Pool struct {
	spawner       Spawner
	pids          *pidfile.Store
	emit          func(Event)
	launchTimeout time.Duration
	threshold     int
	metrics       MetricsCollector
	logger        *zap.SugaredLogger

	nextID    int
	flameouts int
	records   map[int]*WorkerRecord

	draining bool
	drained  chan struct{}
	closed   bool
}

type PoolOption func(*Pool)

func WithLaunchTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.launchTimeout = d
	}
}

func WithFlameoutThreshold(n int) PoolOption {
	return func(p *Pool) {
		p.threshold = n
	}
}

func WithPoolMetrics(m MetricsCollector) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

func WithPoolLogger(l *zap.SugaredLogger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

func NewPool(spawner Spawner, pids *pidfile.Store, emit func(Event), opts ...PoolOption) *Pool {
	p := &Pool{
		spawner:       spawner,
		pids:          pids,
		emit:          emit,
		launchTimeout: DefaultLaunchTimeout,
		threshold:     DefaultFlameoutThreshold,
		metrics:       NoopMetrics{},
		records:       make(map[int]*WorkerRecord),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = logger.Logging("pool")
	}

	return p
}

// Fork 启动一个新的 worker 并开始计时
//
// 返回：
//
//	*WorkerRecord: 新 worker 的记录，状态为 Starting
//	error: Spawner 启动失败
//
// 注意事项：
//
//	启动超时只记录日志，不会杀死 worker；worker 编号在 master 生命周期内单调递增，不会复用
func (p *Pool) Fork() (*WorkerRecord, error) {
	p.nextID++
	id := p.nextID

	child, err := p.spawner.Spawn(id, p.emit)
	if err != nil {
		return nil, err
	}

	rec := &WorkerRecord{
		ID:        id,
		Pid:       child.Pid(),
		State:     codec.WorkerStarting,
		StartedAt: time.Now(),
		child:     child,
	}
	p.records[id] = rec
	p.armWatchdog(rec)

	p.metrics.WorkerForked()
	p.metrics.LiveWorkers(len(p.records))

	p.logger.Infof("Forked worker %d (PID %d)", id, rec.Pid)
	return rec, nil
}

func (p *Pool) armWatchdog(rec *WorkerRecord) {
	p.stopWatchdog(rec)
	if p.launchTimeout <= 0 {
		return
	}

	id, pid := rec.ID, rec.Pid
	rec.watchdog = time.AfterFunc(p.launchTimeout, func() {
		p.emit(Event{Kind: EventLaunchTimeout, ID: id, Pid: pid})
	})
}

func (p *Pool) stopWatchdog(rec *WorkerRecord) {
	if rec.watchdog != nil {
		rec.watchdog.Stop()
		rec.watchdog = nil
	}
}

// Handle 把一个子进程事件应用到 Pool
//
// 只有在异常退出次数超过阈值（ErrFlameoutExceeded）或者无法启动替代 worker 时返回错误，
// 调用方应当把错误视为致命错误。
func (p *Pool) Handle(ev Event) error {
	rec, ok := p.records[ev.ID]
	if !ok {
		p.logger.Debugf("Ignoring %s event for untracked worker %d", ev.Kind, ev.ID)
		return nil
	}

	switch ev.Kind {
	case EventListening:
		p.stopWatchdog(rec)
		rec.State = codec.WorkerListening
		rec.Addr = ev.Addr

		if err := p.pids.Write(pidfile.WorkerName(rec.ID), rec.Pid); err != nil {
			p.logger.Errorf("Worker %d: %v", rec.ID, err)
		}
		p.logger.Infof("Worker %d (PID %d) listening on %s", rec.ID, rec.Pid, ev.Addr)

	case EventReloading:
		if rec.State != codec.WorkerExiting {
			rec.State = codec.WorkerStarting
			p.armWatchdog(rec)
		}
		p.logger.Infof("Worker %d (PID %d) reloading", rec.ID, rec.Pid)

	case EventLaunchTimeout:
		if rec.State == codec.WorkerStarting {
			p.logger.Warnf("Something is wrong with worker %d", rec.ID)
		}

	case EventExit:
		return p.handleExit(rec, ev)
	}

	return nil
}

func (p *Pool) handleExit(rec *WorkerRecord, ev Event) error {
	p.stopWatchdog(rec)
	rec.State = codec.WorkerDead
	delete(p.records, rec.ID)

	if err := p.pids.Remove(pidfile.WorkerName(rec.ID)); err != nil {
		p.logger.Warnf("Worker %d: %v", rec.ID, err)
	}
	p.metrics.LiveWorkers(len(p.records))

	if rec.disconnecting || p.draining {
		p.logger.Infof("Worker %d (PID %d) exited", rec.ID, rec.Pid)
		p.checkDrained()
		return nil
	}

	if ev.Failed() {
		p.flameouts++
		p.metrics.WorkerFlameout()
		p.logger.Warnf("Worker %d (PID %d) died with %s (%d failures)", rec.ID, rec.Pid, ev.exitReason(), p.flameouts)

		if p.flameouts > p.threshold {
			return fmt.Errorf("%w: %d abnormal exits", ErrFlameoutExceeded, p.flameouts)
		}
	} else {
		p.logger.Infof("Worker %d (PID %d) exited without being asked to, replacing it", rec.ID, rec.Pid)
	}

	if _, err := p.Fork(); err != nil {
		return fmt.Errorf("replace worker %d: %w", rec.ID, err)
	}
	p.metrics.WorkerRespawned()

	return nil
}

// DisconnectAll 请求所有 worker 优雅退出
//
// 返回的 channel 在 Pool 中不再有 worker 时关闭（Pool 已经为空时立即关闭）。
// 调用之后 Pool 进入 draining 状态，任何退出都不会再触发重建。
func (p *Pool) DisconnectAll() <-chan struct{} {
	p.draining = true
	if p.drained == nil {
		p.drained = make(chan struct{})
	}

	for _, id := range p.ids() {
		rec := p.records[id]
		if rec.disconnecting {
			continue
		}

		rec.disconnecting = true
		rec.State = codec.WorkerExiting
		p.stopWatchdog(rec)

		if err := rec.child.Disconnect(); err != nil {
			p.logger.Warnf("Disconnect worker %d: %v", rec.ID, err)
		}
	}

	p.checkDrained()
	return p.drained
}

func (p *Pool) checkDrained() {
	if p.draining && !p.closed && len(p.records) == 0 {
		p.closed = true
		close(p.drained)
	}
}

// KillAll sends SIGKILL to every tracked worker. Records and pidfiles are
// left to the exit events.
func (p *Pool) KillAll() {
	for _, id := range p.ids() {
		rec := p.records[id]
		p.stopWatchdog(rec)

		if err := rec.child.Kill(); err != nil {
			p.logger.Warnf("Kill worker %d (PID %d): %v", rec.ID, rec.Pid, err)
		}
	}
}

// Signal 向每个 Starting 或 Listening 状态的 worker 发送一次 sig，返回发送成功的数量
func (p *Pool) Signal(sig syscall.Signal) int {
	n := 0
	for _, id := range p.ids() {
		rec := p.records[id]
		if rec.State != codec.WorkerStarting && rec.State != codec.WorkerListening {
			continue
		}

		if err := rec.child.Signal(sig); err != nil {
			p.logger.Warnf("Signal worker %d (PID %d): %v", rec.ID, rec.Pid, err)
			continue
		}
		n++
	}

	return n
}

func (p *Pool) Workers() []WorkerInfo {
	infos := make([]WorkerInfo, 0, len(p.records))
	for _, id := range p.ids() {
		rec := p.records[id]
		infos = append(infos, WorkerInfo{
			ID:            rec.ID,
			Pid:           rec.Pid,
			State:         rec.State,
			Disconnecting: rec.disconnecting,
		})
	}

	return infos
}

func (p *Pool) Flameouts() int {
	return p.flameouts
}

func (p *Pool) Len() int {
	return len(p.records)
}

func (p *Pool) ids() []int {
	ids := make([]int, 0, len(p.records))
	for id := range p.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}
