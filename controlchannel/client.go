//go:build unix

package controlchannel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
	"github.com/c360/vitalstream/pkg/retry"
	"github.com/c360/vitalstream/shm"
)

const defaultExchangeTimeout = time.Second

// Handshake is a completed exchange: the producer's segment mapped read-only
type Handshake struct {
	Segment  *shm.Segment
	Header   frame.RingHeader
	RingSize uint64
	Attempts int
}

// Close unmaps the segment
func (h *Handshake) Close() error {
	if h == nil || h.Segment == nil {
		return nil
	}
	return h.Segment.Close()
}

// Dial connects to the producer at path and maps the segment it hands over.
// A non-zero expectedSize must match both the announced and the fstat size.
// Every failure restarts the exchange from scratch under cfg's backoff.
func Dial(ctx context.Context, path string, expectedSize uint64, cfg retry.Config, logger *slog.Logger) (*Handshake, error) {
	if logger == nil {
		logger = slog.Default().With("component", "control-client")
	}

	attempts := 0
	hs, err := retry.DoWithResult(ctx, cfg, func() (*Handshake, error) {
		attempts++
		h, err := exchange(ctx, path, expectedSize)
		if err != nil {
			logger.Debug("Handshake attempt failed", "attempt", attempts, "path", path, "error", err)
			return nil, err
		}
		return h, nil
	})
	if err != nil {
		if errors.Is(err, ErrHandshakeFailed) {
			return nil, errors.WrapTransient(err, "controlchannel", "Dial", "handshake")
		}
		return nil, errors.WrapTransient(fmt.Errorf("%w: %w", ErrHandshakeFailed, err),
			"controlchannel", "Dial", "handshake")
	}

	hs.Attempts = attempts
	logger.Info("Control channel handshake complete",
		"path", path,
		"ring_size", hs.RingSize,
		"slots", hs.Header.SlotCount,
		"frame_size", hs.Header.FrameSize,
		"attempts", attempts)
	return hs, nil
}

func exchange(ctx context.Context, path string, expectedSize uint64) (*Handshake, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, errors.WrapTransient(err, "controlchannel", "exchange", "connect")
	}
	conn := c.(*net.UnixConn)
	defer conn.Close()

	deadline := time.Now().Add(defaultExchangeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, MessageSize)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, _, err := conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, errors.WrapTransient(err, "controlchannel", "exchange", "receive message")
	}

	fd, err := receivedFd(oob[:oobn])
	if err != nil {
		return nil, err
	}

	return validate(buf[:n], fd, expectedSize)
}

// receivedFd extracts exactly one descriptor, closing any extras
func receivedFd(oob []byte) (int, error) {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return -1, errors.WrapInvalid(fmt.Errorf("%w: %w", ErrHandshakeFailed, err),
			"controlchannel", "exchange", "parse ancillary data")
	}

	var fds []int
	for i := range msgs {
		rights, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}

	if len(fds) == 0 {
		return -1, errors.WrapInvalid(fmt.Errorf("%w: no descriptor received", ErrHandshakeFailed),
			"controlchannel", "exchange", "descriptor check")
	}
	for _, extra := range fds[1:] {
		_ = unix.Close(extra)
	}
	return fds[0], nil
}

// validate owns fd: it is closed on failure or handed to the mapped segment
func validate(raw []byte, fd int, expectedSize uint64) (_ *Handshake, err error) {
	owned := true
	defer func() {
		if err != nil && owned {
			_ = unix.Close(fd)
		}
	}()

	var msg Message
	if err := msg.UnmarshalBinary(raw); err != nil {
		return nil, err
	}

	switch msg.Type {
	case MessageHandshake:
	case MessageShutdown:
		return nil, errors.WrapTransient(fmt.Errorf("%w: producer shutting down", ErrHandshakeFailed),
			"controlchannel", "validate", "message type check")
	default:
		return nil, errors.WrapInvalid(fmt.Errorf("%w: unexpected message %s", ErrHandshakeFailed, msg.Type),
			"controlchannel", "validate", "message type check")
	}

	if msg.Version != frame.Version {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: version %d", ErrHandshakeFailed, msg.Version),
			"controlchannel", "validate", "version check")
	}

	if expectedSize != 0 && msg.RingSize != expectedSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: announced %d bytes, expected %d", ErrSizeMismatch, msg.RingSize, expectedSize),
			"controlchannel", "validate", "announced size check")
	}

	fileSize, err := shm.FileSize(fd)
	if err != nil {
		return nil, err
	}
	if uint64(fileSize) != msg.RingSize {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: descriptor is %d bytes, announced %d", ErrSizeMismatch, fileSize, msg.RingSize),
			"controlchannel", "validate", "descriptor size check")
	}
	if msg.RingSize < frame.RingHeaderSize {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: ring of %d bytes", ErrSizeMismatch, msg.RingSize),
			"controlchannel", "validate", "minimum size check")
	}

	owned = false
	seg, err := shm.Map(fd, int(msg.RingSize), true)
	if err != nil {
		return nil, err
	}

	header, err := frame.DecodeHeader(seg.Data)
	if err == nil {
		err = header.Validate()
	}
	if err == nil && uint64(header.SegmentSize()) != msg.RingSize {
		err = errors.WrapInvalid(
			fmt.Errorf("%w: header describes %d bytes, announced %d", ErrSizeMismatch, header.SegmentSize(), msg.RingSize),
			"controlchannel", "validate", "ring header check")
	}
	if err != nil {
		_ = seg.Close()
		return nil, err
	}

	return &Handshake{Segment: seg, Header: header, RingSize: msg.RingSize}, nil
}
