package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/security"
	"github.com/c360/vitalstream/pkg/tlsutil"
)

// Transport types
const (
	TransportHTTP = "http"
	TransportFile = "file"
	TransportNATS = "nats"
)

// Config is the daemon configuration file schema
type Config struct {
	DeviceID     string             `json:"device_id" yaml:"device_id"`
	SharedMemory SharedMemoryConfig `json:"shared_memory" yaml:"shared_memory"`
	Control      ControlConfig      `json:"control" yaml:"control"`
	Reader       ReaderConfig       `json:"reader" yaml:"reader"`
	Batch        BatchConfig        `json:"batch" yaml:"batch"`
	Governor     GovernorConfig     `json:"governor" yaml:"governor"`
	Transport    TransportConfig    `json:"transport" yaml:"transport"`
	DeadLetter   DeadLetterConfig   `json:"dead_letter" yaml:"dead_letter"`
	Security     security.Config    `json:"security" yaml:"security"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
}

// SharedMemoryConfig describes the producer's ring
type SharedMemoryConfig struct {
	SocketPath string `json:"socket_path" yaml:"socket_path"`
	SlotCount  uint32 `json:"slot_count" yaml:"slot_count"`
	FrameSize  uint32 `json:"frame_size" yaml:"frame_size"`
}

// ControlConfig holds control channel handshake settings
type ControlConfig struct {
	StartupTimeout Duration `json:"startup_timeout" yaml:"startup_timeout"`
	MaxAttempts    int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay   Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay       Duration `json:"max_delay" yaml:"max_delay"`
}

// ReaderConfig holds ring polling settings
type ReaderConfig struct {
	PollInterval     Duration `json:"poll_interval" yaml:"poll_interval"`
	HeartbeatTimeout Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	MaxFramesPerPoll int      `json:"max_frames_per_poll" yaml:"max_frames_per_poll"`
	EventBuffer      int      `json:"event_buffer" yaml:"event_buffer"`
}

// BatchConfig holds batch compiler settings
type BatchConfig struct {
	Interval         Duration `json:"interval" yaml:"interval"`
	MaxBatchBytes    int      `json:"max_batch_bytes" yaml:"max_batch_bytes"`
	CompressionLevel int      `json:"compression_level" yaml:"compression_level"`
}

// GovernorConfig holds retry and circuit breaker settings
type GovernorConfig struct {
	MaxAttempts      int      `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay     Duration `json:"initial_delay" yaml:"initial_delay"`
	Multiplier       float64  `json:"multiplier" yaml:"multiplier"`
	MaxDelay         Duration `json:"max_delay" yaml:"max_delay"`
	Jitter           bool     `json:"jitter" yaml:"jitter"`
	FailureThreshold int      `json:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeout     Duration `json:"reset_timeout" yaml:"reset_timeout"`
	QueueSize        int      `json:"queue_size" yaml:"queue_size"`
	UploadTimeout    Duration `json:"upload_timeout" yaml:"upload_timeout"`
}

// TransportConfig selects and configures the upload adapter
type TransportConfig struct {
	Type string              `json:"type" yaml:"type"`
	HTTP HTTPTransportConfig `json:"http" yaml:"http"`
	File FileTransportConfig `json:"file" yaml:"file"`
	NATS NATSTransportConfig `json:"nats" yaml:"nats"`
}

// HTTPTransportConfig configures the HTTPS collector upload
type HTTPTransportConfig struct {
	URL        string            `json:"url" yaml:"url"`
	Timeout    Duration          `json:"timeout" yaml:"timeout"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	SigningKey string            `json:"signing_key,omitempty" yaml:"signing_key,omitempty"`

	AllowInsecure bool `json:"allow_insecure,omitempty" yaml:"allow_insecure,omitempty"` // plain http, dev only
}

// FileTransportConfig configures the local directory upload
type FileTransportConfig struct {
	Directory string `json:"directory" yaml:"directory"`
	Prefix    string `json:"prefix" yaml:"prefix"`
}

// NATSTransportConfig configures the JetStream upload
type NATSTransportConfig struct {
	URL      string `json:"url" yaml:"url"`
	Subject  string `json:"subject" yaml:"subject"`
	Stream   string `json:"stream" yaml:"stream"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
}

// DeadLetterConfig enables the spool for abandoned batches
type DeadLetterConfig struct {
	Directory string `json:"directory" yaml:"directory"` // Empty disables the spool
	Prefix    string `json:"prefix" yaml:"prefix"`
}

// Enabled reports whether abandoned batches are spooled
func (c DeadLetterConfig) Enabled() bool {
	return c.Directory != ""
}

// MetricsConfig configures the metrics and health endpoint
type MetricsConfig struct {
	Port int    `json:"port" yaml:"port"`
	Path string `json:"path" yaml:"path"`
}

// Validate checks cross-field rules. Component configs run their own checks
// when converted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DeviceID) == "" {
		return invalid("device_id is required")
	}
	if c.SharedMemory.SocketPath == "" {
		return invalid("shared_memory.socket_path is required")
	}
	if c.Reader.EventBuffer < 1 {
		return invalid("reader.event_buffer must be at least 1")
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return invalid(fmt.Sprintf("metrics.port %d out of range", c.Metrics.Port))
	}

	switch c.Transport.Type {
	case TransportHTTP:
		if c.Transport.HTTP.URL == "" {
			return invalid("transport.http.url is required for http transport")
		}
	case TransportFile:
		if c.Transport.File.Directory == "" {
			return invalid("transport.file.directory is required for file transport")
		}
	case TransportNATS:
		if c.Transport.NATS.URL == "" || c.Transport.NATS.Subject == "" {
			return invalid("transport.nats.url and subject are required for nats transport")
		}
	default:
		return invalid(fmt.Sprintf("transport.type must be http, file or nats, got %q", c.Transport.Type))
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	checks := []func() error{
		func() error { return c.SensorConfig().Validate() },
		func() error { return c.BatchConfig().Validate() },
		func() error { return c.GovernorConfig().Validate() },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "component config")
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	server := c.Security.TLS.Server
	if server.Enabled && (server.CertFile == "" || server.KeyFile == "") {
		return invalid("security.tls.server requires cert_file and key_file when enabled")
	}
	if !tlsutil.ValidTLSVersion(server.MinVersion) {
		return invalid(fmt.Sprintf("security.tls.server.min_version %q must be 1.2 or 1.3", server.MinVersion))
	}
	if server.MTLS.Enabled && len(server.MTLS.ClientCAFiles) == 0 {
		return invalid("security.tls.server.mtls requires client_ca_files")
	}

	client := c.Security.TLS.Client
	if !tlsutil.ValidTLSVersion(client.MinVersion) {
		return invalid(fmt.Sprintf("security.tls.client.min_version %q must be 1.2 or 1.3", client.MinVersion))
	}
	if client.MTLS.Enabled && (client.MTLS.CertFile == "" || client.MTLS.KeyFile == "") {
		return invalid("security.tls.client.mtls requires cert_file and key_file")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "check")
}

// String returns the configuration as indented JSON with secrets masked
func (c *Config) String() string {
	redacted := *c
	if redacted.Transport.HTTP.SigningKey != "" {
		redacted.Transport.HTTP.SigningKey = "***"
	}
	if redacted.Transport.NATS.Password != "" {
		redacted.Transport.NATS.Password = "***"
	}
	if redacted.Transport.NATS.Token != "" {
		redacted.Transport.NATS.Token = "***"
	}

	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
