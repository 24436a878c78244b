package sensor

import (
	"fmt"

	"github.com/c360/vitalstream/frame"
)

// EventKind identifies what an Event carries
type EventKind int

// Event kinds
const (
	EventVitals EventKind = iota + 1
	EventWaveform
	EventStatus
)

// String returns the kind name
func (k EventKind) String() string {
	switch k {
	case EventVitals:
		return "vitals"
	case EventWaveform:
		return "waveform"
	case EventStatus:
		return "status"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// State is the producer connection state seen by the reader
type State int32

// Connection states
const (
	StateDisconnected State = iota
	StateConnected
	StateStalled
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateStalled:
		return "stalled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Event is one item delivered to the sink. Only the field matching Kind is set.
type Event struct {
	Kind      EventKind
	Sequence  uint64
	Timestamp uint64 // producer wall clock, unix ms

	Vitals   frame.VitalsPayload
	Waveform frame.WaveformPayload

	State  State
	Detail string
}
