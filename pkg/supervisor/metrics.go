package supervisor

// MetricsCollector 接收 master 的生命周期指标
//
// 所有方法都在事件循环 goroutine 中调用，实现不需要自己处理并发，
// 但导出指标的实现（例如 Prometheus）仍然需要线程安全。
type MetricsCollector interface {
	ControllerState(from, to ControllerState)
	WorkerForked()
	WorkerRespawned()
	WorkerFlameout()
	LiveWorkers(n int)
}

type NoopMetrics struct{}

func (NoopMetrics) ControllerState(ControllerState, ControllerState) {}

func (NoopMetrics) WorkerForked() {}

func (NoopMetrics) WorkerRespawned() {}

func (NoopMetrics) WorkerFlameout() {}

func (NoopMetrics) LiveWorkers(int) {}
