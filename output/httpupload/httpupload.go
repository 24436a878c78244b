package httpupload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/tlsutil"
	"github.com/c360/vitalstream/telemetry"
)

// Request headers set on every upload
const (
	HeaderBatchID  = "X-Batch-ID"
	HeaderDeviceID = "X-Device-ID"
)

const maxErrorBody = 512

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code   int
	Status string
	Body   string // Truncated response body
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector returned %s", e.Status)
	}
	return fmt.Sprintf("collector returned %s: %s", e.Status, e.Body)
}

// Temporary reports whether the collector may accept the batch later
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// Uploader posts batches over HTTP(S)
type Uploader struct {
	config     Config
	client     *http.Client
	signingKey []byte
	logger     *slog.Logger
	now        func() time.Time

	sent   atomic.Int64
	failed atomic.Int64
}

// New creates an uploader. TLS settings apply to https URLs.
func New(cfg Config, logger *slog.Logger) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default().With("component", "http-uploader")
	}
	if cfg.AllowInsecure && strings.HasPrefix(cfg.URL, "http://") {
		logger.Warn("Uploading over plain HTTP, batches are not encrypted in transit", "url", cfg.URL)
	}

	tlsConfig, err := tlsutil.LoadClientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, errors.WrapFatal(err, "http-uploader", "New", "load TLS config")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	u := &Uploader{
		config: cfg,
		client: &http.Client{Transport: transport},
		logger: logger,
		now:    time.Now,
	}
	if cfg.SigningKey != "" {
		u.signingKey = []byte(cfg.SigningKey)
	}
	return u, nil
}

// Upload makes one POST attempt for b
func (u *Uploader) Upload(ctx context.Context, b telemetry.Batch) error {
	reqCtx, cancel := context.WithTimeout(ctx, u.config.Timeout)
	defer cancel()

	req, err := u.newRequest(reqCtx, b)
	if err != nil {
		u.failed.Add(1)
		return err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		u.failed.Add(1)
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return errors.WrapTransient(fmt.Errorf("%w after %v: %w", errors.ErrUploadTimeout, u.config.Timeout, err),
				"http-uploader", "Upload", "post batch")
		}
		if ctx.Err() != nil {
			return errors.WrapTransient(ctx.Err(), "http-uploader", "Upload", "post batch")
		}
		return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err), "http-uploader", "Upload", "post batch")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection is reused
		_, _ = io.Copy(io.Discard, resp.Body)
		u.sent.Add(1)
		u.logger.Debug("Batch posted", "batch_id", b.ID, "status", resp.StatusCode, "bytes", b.Size())
		return nil
	}

	u.failed.Add(1)
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	statusErr := &StatusError{
		Code:   resp.StatusCode,
		Status: resp.Status,
		Body:   strings.TrimSpace(string(body)),
	}
	u.logger.Debug("Collector refused batch",
		"batch_id", b.ID, "status", resp.StatusCode, "temporary", statusErr.Temporary())
	return errors.WrapTransient(statusErr, "http-uploader", "Upload", "check status")
}

func (u *Uploader) newRequest(ctx context.Context, b telemetry.Batch) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.config.URL, bytes.NewReader(b.Payload))
	if err != nil {
		return nil, errors.WrapInvalid(err, "http-uploader", "Upload", "build request")
	}

	for key, value := range u.config.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", telemetry.ContentType)
	if b.Encoding != "" {
		req.Header.Set("Content-Encoding", b.Encoding)
	}
	req.Header.Set(HeaderBatchID, b.ID)
	req.Header.Set(HeaderDeviceID, b.DeviceID)

	if u.signingKey != nil {
		token, err := SignBatch(b, u.signingKey, u.now())
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// Sent returns the number of accepted batches
func (u *Uploader) Sent() int64 {
	return u.sent.Load()
}

// Failed returns the number of failed attempts
func (u *Uploader) Failed() int64 {
	return u.failed.Load()
}

// Close releases idle connections
func (u *Uploader) Close() error {
	u.client.CloseIdleConnections()
	return nil
}
