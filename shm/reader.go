package shm

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
)

// DefaultHeartbeatTimeout is the heartbeat age after which the producer is
// considered stalled
const DefaultHeartbeatTimeout = 250 * time.Millisecond

// ReaderConfig tunes the consumer
type ReaderConfig struct {
	// MaxFramesPerPoll caps the frames surfaced by one Poll. Zero is unlimited.
	MaxFramesPerPoll int
	HeartbeatTimeout time.Duration

	Clock  func() time.Time
	Logger *slog.Logger
}

// ReaderStats is a snapshot of the reader counters
type ReaderStats struct {
	Frames       uint64 `json:"frames"`
	Corrupted    uint64 `json:"corrupted"`
	Overruns     uint64 `json:"overruns"`
	Missed       uint64 `json:"missed"`
	LastSequence uint64 `json:"last_sequence"`
}

// Liveness is the outcome of a heartbeat check
type Liveness int

// Heartbeat check outcomes
const (
	LivenessUnchanged Liveness = iota
	LivenessAlive
	LivenessStalled
	LivenessRecovered
)

// Reader is the consumer side of the ring. Poll and CheckLiveness must be
// called from a single goroutine; Stats, Stalled and HeartbeatAge may be
// called from any.
type Reader struct {
	data   []byte
	header frame.RingHeader
	words  ringWords
	cfg    ReaderConfig
	logger *slog.Logger

	cursor  uint64
	scratch []byte
	haveSeq bool

	lastBeat   uint64
	lastChange atomic.Int64
	stalled    atomic.Bool

	frames    atomic.Uint64
	corrupted atomic.Uint64
	overruns  atomic.Uint64
	missed    atomic.Uint64
	lastSeq   atomic.Uint64
}

// NewReader validates the ring header in data and positions the cursor at
// the current writeIndex, so only frames published after attach are read.
func NewReader(data []byte, cfg ReaderConfig) (*Reader, error) {
	h, err := frame.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if len(data) < h.SegmentSize() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("segment %d bytes, header describes %d", len(data), h.SegmentSize()),
			"Reader", "NewReader", "segment size check")
	}

	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "shm-reader")
	}

	r := &Reader{
		data:    data,
		header:  h,
		words:   wordsOf(data),
		cfg:     cfg,
		logger:  logger,
		scratch: make([]byte, h.FrameSize),
	}
	r.cursor = r.words.loadWriteIndex()
	r.lastBeat = r.words.loadHeartbeat()
	r.lastChange.Store(cfg.Clock().UnixNano())
	return r, nil
}

// Header returns the validated ring geometry
func (r *Reader) Header() frame.RingHeader {
	return r.header
}

// Poll surfaces every complete frame published since the last call, up to
// MaxFramesPerPoll. The Frame passed to handle aliases an internal buffer
// that is overwritten by the next frame.
func (r *Reader) Poll(handle func(frame.Frame)) int {
	slots := uint64(r.header.SlotCount)
	w := r.words.loadWriteIndex()
	r.resync(w)

	n := 0
	for r.cursor < w {
		if r.cfg.MaxFramesPerPoll > 0 && n >= r.cfg.MaxFramesPerPoll {
			break
		}

		i := r.cursor
		off := r.header.SlotOffset(i)
		copy(r.scratch, r.data[off:off+int(r.header.FrameSize)])

		w2 := r.words.loadWriteIndex()
		if w2-i >= slots {
			// Slot was lapped while copying
			r.overruns.Add(1)
			r.logger.Warn("Ring slot overwritten during read, frame discarded",
				"index", i, "write_index", w2)
			w = w2
			r.cursor++
			r.resync(w)
			continue
		}
		r.cursor++

		f, err := frame.DecodeFrame(r.scratch)
		if err != nil {
			r.corrupted.Add(1)
			r.logger.Debug("Dropping corrupted frame", "index", i, "error", err)
			continue
		}

		r.trackSequence(f.Sequence)
		r.frames.Add(1)
		n++
		handle(f)
	}

	return n
}

// resync jumps the cursor forward when the writer is more than a full ring
// ahead. A writeIndex behind the cursor means the ring was reformatted.
func (r *Reader) resync(w uint64) {
	slots := uint64(r.header.SlotCount)

	if w < r.cursor {
		r.logger.Warn("Write index moved backwards, resetting cursor",
			"cursor", r.cursor, "write_index", w)
		r.cursor = w
		r.haveSeq = false
		return
	}

	if w-r.cursor > slots {
		target := w - slots + 1
		r.overruns.Add(1)
		r.logger.Warn("Ring overrun, frames lost",
			"cursor", r.cursor, "write_index", w, "lost", target-r.cursor)
		r.cursor = target
	}
}

func (r *Reader) trackSequence(seq uint64) {
	if r.haveSeq {
		last := r.lastSeq.Load()
		if seq > last+1 {
			r.missed.Add(seq - last - 1)
		}
	}
	r.haveSeq = true
	r.lastSeq.Store(seq)
}

// CheckLiveness compares the heartbeat with its previous value and reports
// transitions between alive and stalled
func (r *Reader) CheckLiveness() Liveness {
	now := r.cfg.Clock()
	beat := r.words.loadHeartbeat()

	if beat != r.lastBeat {
		r.lastBeat = beat
		r.lastChange.Store(now.UnixNano())
		if r.stalled.CompareAndSwap(true, false) {
			return LivenessRecovered
		}
		return LivenessAlive
	}

	if !r.stalled.Load() && now.Sub(time.Unix(0, r.lastChange.Load())) > r.cfg.HeartbeatTimeout {
		r.stalled.Store(true)
		return LivenessStalled
	}

	return LivenessUnchanged
}

// Stalled reports whether the last liveness check found the producer stalled
func (r *Reader) Stalled() bool {
	return r.stalled.Load()
}

// HeartbeatAge returns how long the heartbeat has been unchanged
func (r *Reader) HeartbeatAge() time.Duration {
	return r.cfg.Clock().Sub(time.Unix(0, r.lastChange.Load()))
}

// Stats returns a snapshot of the counters
func (r *Reader) Stats() ReaderStats {
	return ReaderStats{
		Frames:       r.frames.Load(),
		Corrupted:    r.corrupted.Load(),
		Overruns:     r.overruns.Load(),
		Missed:       r.missed.Load(),
		LastSequence: r.lastSeq.Load(),
	}
}
