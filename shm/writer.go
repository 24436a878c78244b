package shm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/pkg/timestamp"
)

// DefaultHeartbeatInterval is how often RunHeartbeat refreshes the heartbeat
const DefaultHeartbeatInterval = 50 * time.Millisecond

// Writer is the producer side of the ring. Only one Writer may exist per
// segment; its methods are safe for concurrent use within that process.
type Writer struct {
	mu     sync.Mutex
	data   []byte
	header frame.RingHeader
	words  ringWords

	seq     uint64
	payload [frame.WaveformPayloadSize]byte

	clock func() time.Time
}

// NewWriter formats data as an empty ring of the given geometry
func NewWriter(data []byte, slotCount, frameSize uint32) (*Writer, error) {
	h := frame.NewRingHeader(slotCount, frameSize)
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if len(data) < h.SegmentSize() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("segment %d bytes, ring needs %d", len(data), h.SegmentSize()),
			"Writer", "NewWriter", "segment size check")
	}
	if err := frame.EncodeHeader(data, h); err != nil {
		return nil, err
	}

	w := &Writer{
		data:   data,
		header: h,
		words:  wordsOf(data),
		clock:  time.Now,
	}
	atomic.StoreUint64(w.words.writeIndex, 0)
	w.Beat()
	return w, nil
}

// Header returns the ring geometry
func (w *Writer) Header() frame.RingHeader {
	return w.header
}

// Write publishes one frame and returns the sequence number it carried
func (w *Writer) Write(t frame.Type, ts uint64, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(t, ts, payload)
}

func (w *Writer) writeLocked(t frame.Type, ts uint64, payload []byte) (uint64, error) {
	idx := w.words.loadWriteIndex()
	off := w.header.SlotOffset(idx)
	slot := w.data[off : off+int(w.header.FrameSize)]

	seq := w.seq
	if _, err := frame.EncodeFrame(slot, frame.Frame{
		Type:      t,
		Timestamp: ts,
		Sequence:  seq,
		Payload:   payload,
	}); err != nil {
		return 0, err
	}
	w.seq++

	atomic.AddUint64(w.words.writeIndex, 1)
	return seq, nil
}

// WriteVitals encodes and publishes a vitals sample
func (w *Writer) WriteVitals(ts uint64, p frame.VitalsPayload) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, err := p.AppendBinary(w.payload[:0])
	if err != nil {
		return 0, err
	}
	return w.writeLocked(frame.TypeVitals, ts, buf)
}

// WriteWaveform encodes and publishes a waveform block
func (w *Writer) WriteWaveform(ts uint64, p *frame.WaveformPayload) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, err := p.AppendBinary(w.payload[:0])
	if err != nil {
		return 0, err
	}
	return w.writeLocked(frame.TypeWaveform, ts, buf)
}

// Beat stores the current wall-clock time in the heartbeat field
func (w *Writer) Beat() {
	atomic.StoreUint64(w.words.heartbeat, uint64(timestamp.ToUnixMs(w.clock())))
}

// RunHeartbeat beats every interval until ctx is done
func (w *Writer) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Beat()
		}
	}
}

// WriteIndex returns the number of frames published so far
func (w *Writer) WriteIndex() uint64 {
	return w.words.loadWriteIndex()
}
