package codec

type ProcInfo struct {
	Name   string       `json:"name"`
	Pid    int          `json:"pid"`
	Status ProcessState `json:"status"`
}

// StatusReport 是 status 命令的结果
type StatusReport struct {
	Master  ProcInfo   `json:"master"`
	Workers []ProcInfo `json:"workers"`
}
