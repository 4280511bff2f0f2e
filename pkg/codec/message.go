package codec

import (
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// MsgKind 是 worker 通过状态管道发给 master 的消息类型
type MsgKind int

const (
	// MsgListening worker 已经在共享端口上开始服务
	MsgListening MsgKind = iota + 1
	// MsgReloading worker 即将重新执行自身
	MsgReloading
)

func (k MsgKind) String() string {
	switch k {
	case MsgListening:
		return "listening"
	case MsgReloading:
		return "reloading"
	default:
		return "unknown"
	}
}

type WorkerMsg struct {
	Kind MsgKind `cbor:"1,keyasint"`
	Pid  int     `cbor:"2,keyasint"`
	Addr string  `cbor:"3,keyasint,omitempty"`
}

// MsgWriter 把 WorkerMsg 以 CBOR 流的形式写入管道
type MsgWriter struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

func NewMsgWriter(w io.Writer) (*MsgWriter, error) {
	em, err := GetEncoder()
	if err != nil {
		return nil, err
	}

	return &MsgWriter{enc: em.NewEncoder(w)}, nil
}

func (w *MsgWriter) Write(msg *WorkerMsg) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.enc.Encode(msg)
}

// MsgReader 从管道读取 WorkerMsg，写端关闭时 Read 返回 io.EOF
type MsgReader struct {
	dec *cbor.Decoder
}

func NewMsgReader(r io.Reader) *MsgReader {
	return &MsgReader{dec: cbor.NewDecoder(r)}
}

func (r *MsgReader) Read() (*WorkerMsg, error) {
	msg := new(WorkerMsg)
	if err := r.dec.Decode(msg); err != nil {
		return nil, err
	}

	return msg, nil
}
