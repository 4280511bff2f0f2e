package codec

import (
	"sync"

	"github.com/fxamacker/cbor/v2"
)

var (
	encodeOnce sync.Once
	encodeMode cbor.EncMode
	encodeErr  error
)

func GetEncoder() (cbor.EncMode, error) {
	encodeOnce.Do(func() {
		opts := cbor.CoreDetEncOptions()
		opts.Time = cbor.TimeUnix
		encodeMode, encodeErr = opts.EncMode()
	})

	return encodeMode, encodeErr
}
