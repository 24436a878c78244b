package natsupload

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/security"
)

// Config holds JetStream upload settings
type Config struct {
	URL      string
	Subject  string
	Stream   string // When set, the stream is created or updated to capture Subject
	Username string
	Password string
	Token    string

	ConnectTimeout  time.Duration
	ReconnectWait   time.Duration
	MaxReconnects   int // -1 for unlimited
	DuplicateWindow time.Duration

	TLS security.ClientTLSConfig
}

// DefaultConfig returns local-broker defaults
func DefaultConfig() Config {
	return Config{
		URL:             "nats://127.0.0.1:4222",
		Subject:         "vitalstream.batches",
		Stream:          "VITALSTREAM",
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   -1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: url is required", errors.ErrMissingConfig),
			"natsupload.Config", "Validate", "url check")
	}
	if c.Subject == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: subject is required", errors.ErrMissingConfig),
			"natsupload.Config", "Validate", "subject check")
	}
	if strings.ContainsAny(c.Subject, "*> \t") {
		return errors.WrapInvalid(fmt.Errorf("%w: subject %q must be a literal subject", errors.ErrInvalidConfig, c.Subject),
			"natsupload.Config", "Validate", "subject check")
	}
	if strings.ContainsAny(c.Stream, ". *>") {
		return errors.WrapInvalid(fmt.Errorf("%w: invalid stream name %q", errors.ErrInvalidConfig, c.Stream),
			"natsupload.Config", "Validate", "stream check")
	}
	if c.ConnectTimeout < 0 || c.ReconnectWait < 0 || c.DuplicateWindow < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: durations must not be negative", errors.ErrInvalidConfig),
			"natsupload.Config", "Validate", "duration check")
	}
	if (c.Username == "") != (c.Password == "") {
		return errors.WrapInvalid(fmt.Errorf("%w: username and password go together", errors.ErrInvalidConfig),
			"natsupload.Config", "Validate", "auth check")
	}
	return nil
}
