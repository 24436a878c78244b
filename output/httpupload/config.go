package httpupload

import (
	"fmt"
	"net/url"
	"time"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/security"
	"github.com/c360/vitalstream/pkg/tlsutil"
)

// DefaultTimeout bounds a single request
const DefaultTimeout = 15 * time.Second

// Config holds HTTP upload settings
type Config struct {
	URL        string
	Timeout    time.Duration
	Headers    map[string]string // Extra static headers, applied before the batch headers
	SigningKey string            // HS256 key; empty disables batch tokens
	TLS        security.ClientTLSConfig

	// AllowInsecure permits plain http:// collectors. Development and tests only.
	AllowInsecure bool
}

// DefaultConfig returns a config with the default timeout and TLS 1.2 minimum
func DefaultConfig() Config {
	return Config{
		Timeout: DefaultTimeout,
		Headers: make(map[string]string),
		TLS: security.ClientTLSConfig{
			MinVersion: "1.2",
		},
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: url is required", errors.ErrMissingConfig),
			"httpupload.Config", "Validate", "url check")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.WrapInvalid(err, "httpupload.Config", "Validate", "parse url")
	}
	switch {
	case u.Scheme == "https":
	case u.Scheme == "http" && c.AllowInsecure:
	case u.Scheme == "http":
		return errors.WrapInvalid(fmt.Errorf("%w: plain http requires allow_insecure", errors.ErrInvalidConfig),
			"httpupload.Config", "Validate", "url check")
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: unsupported scheme %q", errors.ErrInvalidConfig, u.Scheme),
			"httpupload.Config", "Validate", "url check")
	}
	if u.Host == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: url has no host", errors.ErrInvalidConfig),
			"httpupload.Config", "Validate", "url check")
	}
	if c.Timeout < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: timeout must not be negative", errors.ErrInvalidConfig),
			"httpupload.Config", "Validate", "timeout check")
	}
	if c.TLS.MinVersion != "" && !tlsutil.ValidTLSVersion(c.TLS.MinVersion) {
		return errors.WrapInvalid(fmt.Errorf("%w: min_version must be 1.2 or 1.3", errors.ErrInvalidConfig),
			"httpupload.Config", "Validate", "tls check")
	}
	return nil
}
