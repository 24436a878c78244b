package sensor

import (
	"fmt"
	"time"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/pkg/retry"
)

// Config holds the reader settings
type Config struct {
	SocketPath string `json:"socket_path" yaml:"socket_path"`

	// SlotCount and FrameSize describe the ring the producer is expected to
	// publish. When either is zero the announced geometry is trusted.
	SlotCount uint32 `json:"slot_count" yaml:"slot_count"`
	FrameSize uint32 `json:"frame_size" yaml:"frame_size"`

	StartupTimeout   time.Duration `json:"startup_timeout" yaml:"startup_timeout"`
	PollInterval     time.Duration `json:"poll_interval" yaml:"poll_interval"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	MaxFramesPerPoll int           `json:"max_frames_per_poll" yaml:"max_frames_per_poll"`

	Handshake retry.Config `json:"handshake" yaml:"handshake"`

	// Reconnect paces background handshakes after a failed start.
	// MaxAttempts is ignored; retries continue until stopped.
	Reconnect retry.Config `json:"reconnect" yaml:"reconnect"`
}

// DefaultConfig returns the reader defaults
func DefaultConfig() Config {
	return Config{
		SocketPath:       "/tmp/vitalstream.sock",
		SlotCount:        frame.DefaultSlotCount,
		FrameSize:        frame.DefaultFrameSize,
		StartupTimeout:   5 * time.Second,
		PollInterval:     time.Millisecond,
		HeartbeatTimeout: 250 * time.Millisecond,
		Handshake:        retry.Quick(),
		Reconnect: retry.Config{
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "sensor.Config", "Validate", "socket path check")
	}
	if c.FrameSize != 0 && c.FrameSize < frame.MinFrameSize {
		return errors.WrapInvalid(
			fmt.Errorf("%w: frame_size %d below minimum %d", errors.ErrInvalidConfig, c.FrameSize, frame.MinFrameSize),
			"sensor.Config", "Validate", "frame size check")
	}
	if c.StartupTimeout <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: startup_timeout must be positive", errors.ErrInvalidConfig),
			"sensor.Config", "Validate", "startup timeout check")
	}
	if c.PollInterval <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: poll_interval must be positive", errors.ErrInvalidConfig),
			"sensor.Config", "Validate", "poll interval check")
	}
	if c.MaxFramesPerPoll < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: max_frames_per_poll is negative", errors.ErrInvalidConfig),
			"sensor.Config", "Validate", "poll limit check")
	}
	if err := c.Handshake.Validate(); err != nil {
		return err
	}
	return c.Reconnect.Validate()
}

// ExpectedSize returns the segment size to enforce, or zero to trust the producer
func (c Config) ExpectedSize() uint64 {
	if c.SlotCount == 0 || c.FrameSize == 0 {
		return 0
	}
	return uint64(frame.SegmentSize(c.SlotCount, c.FrameSize))
}
