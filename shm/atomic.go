package shm

import (
	"sync/atomic"
	"unsafe"

	"github.com/c360/vitalstream/frame"
)

// ringWords points at the two dynamic header fields inside a mapping
type ringWords struct {
	writeIndex *uint64
	heartbeat  *uint64
}

func wordsOf(data []byte) ringWords {
	return ringWords{
		writeIndex: (*uint64)(unsafe.Pointer(&data[frame.OffsetWriteIndex])),
		heartbeat:  (*uint64)(unsafe.Pointer(&data[frame.OffsetHeartbeat])),
	}
}

func (w ringWords) loadWriteIndex() uint64 {
	return atomic.LoadUint64(w.writeIndex)
}

func (w ringWords) loadHeartbeat() uint64 {
	return atomic.LoadUint64(w.heartbeat)
}
