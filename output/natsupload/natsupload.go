package natsupload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/pkg/tlsutil"
	"github.com/c360/vitalstream/telemetry"
)

// Message headers
const (
	HeaderBatchID  = "X-Batch-ID"
	HeaderDeviceID = "X-Device-ID"
)

// Uploader publishes batches to JetStream
type Uploader struct {
	config Config
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	published  atomic.Int64
	duplicates atomic.Int64
	reconnects atomic.Int64
}

// New creates an uploader. Call Connect before the first Upload.
func New(cfg Config, logger *slog.Logger) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default().With("component", "nats-uploader")
	}
	return &Uploader{config: cfg, logger: logger}, nil
}

func (u *Uploader) connectionOptions() ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("vitalstream-uploader"),
		nats.MaxReconnects(u.config.MaxReconnects),
		nats.DisconnectErrHandler(u.handleDisconnect),
		nats.ReconnectHandler(u.handleReconnect),
		nats.ClosedHandler(u.handleClosed),
		nats.ErrorHandler(u.handleError),
	}
	if u.config.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(u.config.ConnectTimeout))
	}
	if u.config.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(u.config.ReconnectWait))
	}
	if u.config.Username != "" {
		opts = append(opts, nats.UserInfo(u.config.Username, u.config.Password))
	}
	if u.config.Token != "" {
		opts = append(opts, nats.Token(u.config.Token))
	}

	tlsCfg := u.config.TLS
	if len(tlsCfg.CAFiles) > 0 || tlsCfg.MTLS.Enabled || tlsCfg.InsecureSkipVerify {
		tlsConfig, err := tlsutil.LoadClientTLSConfig(tlsCfg)
		if err != nil {
			return nil, errors.WrapFatal(err, "nats-uploader", "Connect", "load TLS config")
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}
	return opts, nil
}

// Connect dials the broker and prepares the stream
func (u *Uploader) Connect(ctx context.Context) error {
	opts, err := u.connectionOptions()
	if err != nil {
		return err
	}

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(u.config.URL, opts...)
		done <- result{conn, err}
	}()

	var conn *nats.Conn
	select {
	case r := <-done:
		if r.err != nil {
			return errors.WrapTransient(r.err, "nats-uploader", "Connect", "establish connection")
		}
		conn = r.conn
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return errors.WrapTransient(ctx.Err(), "nats-uploader", "Connect", "connection cancelled")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "nats-uploader", "Connect", "init JetStream")
	}

	if u.config.Stream != "" {
		_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:       u.config.Stream,
			Subjects:   []string{u.config.Subject},
			Storage:    jetstream.FileStorage,
			Duplicates: u.config.DuplicateWindow,
		})
		if err != nil {
			conn.Close()
			return errors.WrapTransient(err, "nats-uploader", "Connect", "create stream")
		}
	}

	u.mu.Lock()
	u.conn = conn
	u.js = js
	u.mu.Unlock()

	u.logger.Info("Connected to NATS", "url", conn.ConnectedUrlRedacted(), "subject", u.config.Subject, "stream", u.config.Stream)
	return nil
}

// Connected reports whether the broker connection is up
func (u *Uploader) Connected() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.conn != nil && u.conn.IsConnected()
}

// NewMsg builds the JetStream message for b
func (u *Uploader) NewMsg(b telemetry.Batch) *nats.Msg {
	msg := nats.NewMsg(u.config.Subject)
	msg.Data = b.Payload
	msg.Header.Set(jetstream.MsgIDHeader, b.ID)
	msg.Header.Set("Content-Type", telemetry.ContentType)
	if b.Encoding != "" {
		msg.Header.Set("Content-Encoding", b.Encoding)
	}
	msg.Header.Set(HeaderBatchID, b.ID)
	msg.Header.Set(HeaderDeviceID, b.DeviceID)
	return msg
}

// Upload publishes b and waits for the PubAck
func (u *Uploader) Upload(ctx context.Context, b telemetry.Batch) error {
	u.mu.RLock()
	js := u.js
	u.mu.RUnlock()

	if js == nil {
		return errors.WrapTransient(errors.ErrNotStarted, "nats-uploader", "Upload", "connection check")
	}
	if b.ID == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: empty batch id", errors.ErrInvalidData),
			"nats-uploader", "Upload", "id check")
	}

	ack, err := js.PublishMsg(ctx, u.NewMsg(b))
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadTimeout, err), "nats-uploader", "Upload", "publish")
		case errors.Is(err, nats.ErrMaxPayload):
			return errors.WrapInvalid(err, "nats-uploader", "Upload", "publish")
		default:
			return errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrUploadFailed, err), "nats-uploader", "Upload", "publish")
		}
	}

	if ack.Duplicate {
		u.duplicates.Add(1)
		u.logger.Debug("Batch already in stream", "batch_id", b.ID, "stream", ack.Stream, "seq", ack.Sequence)
		return nil
	}
	u.published.Add(1)
	u.logger.Debug("Batch published", "batch_id", b.ID, "stream", ack.Stream, "seq", ack.Sequence, "bytes", b.Size())
	return nil
}

// Published returns the number of acknowledged batches, excluding duplicates
func (u *Uploader) Published() int64 {
	return u.published.Load()
}

// Duplicates returns the number of batches the stream already held
func (u *Uploader) Duplicates() int64 {
	return u.duplicates.Load()
}

// Close drains and closes the connection
func (u *Uploader) Close() error {
	u.mu.Lock()
	conn := u.conn
	u.conn = nil
	u.js = nil
	u.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.Wrap(err, "nats-uploader", "Close", "drain connection")
	}
	return nil
}

func (u *Uploader) handleDisconnect(_ *nats.Conn, err error) {
	if err != nil {
		u.logger.Warn("NATS disconnected", "error", err)
		return
	}
	u.logger.Info("NATS disconnected")
}

func (u *Uploader) handleReconnect(conn *nats.Conn) {
	u.reconnects.Add(1)
	u.logger.Info("NATS reconnected", "url", conn.ConnectedUrlRedacted())
}

func (u *Uploader) handleClosed(_ *nats.Conn) {
	u.logger.Debug("NATS connection closed")
}

func (u *Uploader) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	u.logger.Error("NATS async error", "error", err)
}
