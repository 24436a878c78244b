package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/vitalstream/telemetry"
)

// Uploader delivers one batch. nil means delivered; implementations never
// retry and never panic.
type Uploader interface {
	Upload(ctx context.Context, b telemetry.Batch) error
}

// BatchState is a position in the batch lifecycle
type BatchState int

// Batch states
const (
	StatePending BatchState = iota
	StateUploading
	StateSucceeded
	StateFailed
	StateAbandoned
	StateRejected
)

// String returns the state name
func (s BatchState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateUploading:
		return "uploading"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateAbandoned:
		return "abandoned"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further attempts follow
func (s BatchState) Terminal() bool {
	return s == StateSucceeded || s == StateAbandoned || s == StateRejected
}

// Outcome is the terminal result for one batch
type Outcome struct {
	BatchID  string        `json:"batch_id"`
	State    BatchState    `json:"state"`
	Attempts int           `json:"attempts"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}
