package codec

// WorkerState 是 worker 记录的生命周期状态
type WorkerState string

const (
	WorkerStarting  WorkerState = "Starting"
	WorkerListening WorkerState = "Listening"
	WorkerExiting   WorkerState = "Exiting"
	WorkerDead      WorkerState = "Dead"
)

// ProcessState 是 status 命令探测到的进程状态
type ProcessState string

const (
	ProcessAlive ProcessState = "alive"
	ProcessDead  ProcessState = "dead"
)
