//go:build unix

package controlchannel

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/c360/vitalstream/errors"
	"github.com/c360/vitalstream/frame"
)

const acceptPollInterval = 100 * time.Millisecond

// Errors returned by the control channel
var (
	ErrHandshakeFailed = errors.ErrHandshakeFailed
	ErrSizeMismatch    = errors.New("ring size mismatch")
)

// Server publishes one segment descriptor to every connecting consumer
type Server struct {
	path     string
	fd       int
	size     uint64
	logger   *slog.Logger
	listener *net.UnixListener

	mu       sync.Mutex
	closed   atomic.Bool
	served   atomic.Int64
	failures atomic.Int64
}

// NewServer removes a stale socket at path and starts listening. fd must stay
// open for the lifetime of the server.
func NewServer(path string, fd int, size uint64, logger *slog.Logger) (*Server, error) {
	if path == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "controlchannel", "NewServer", "socket path check")
	}
	if logger == nil {
		logger = slog.Default().With("component", "control-server")
	}

	if err := removeStaleSocket(path); err != nil {
		return nil, err
	}

	addr := &net.UnixAddr{Name: path, Net: "unix"}
	l, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, errors.WrapTransient(err, "controlchannel", "NewServer", fmt.Sprintf("listen on %s", path))
	}
	l.SetUnlinkOnClose(true)

	if err := os.Chmod(path, 0o600); err != nil {
		logger.Warn("Could not restrict socket permissions", "path", path, "error", err)
	}

	return &Server{
		path:     path,
		fd:       fd,
		size:     size,
		logger:   logger,
		listener: l,
	}, nil
}

func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.WrapTransient(err, "controlchannel", "NewServer", "stat socket path")
	}
	if info.Mode()&os.ModeSocket == 0 {
		return errors.WrapInvalid(fmt.Errorf("%s exists and is not a socket", path),
			"controlchannel", "NewServer", "stale socket check")
	}
	if err := os.Remove(path); err != nil {
		return errors.WrapTransient(err, "controlchannel", "NewServer", "remove stale socket")
	}
	return nil
}

// Serve accepts connections until ctx is cancelled or the server is closed
func (s *Server) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = s.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := s.listener.AcceptUnix()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if s.closed.Load() {
				return nil
			}
			return errors.WrapTransient(err, "controlchannel", "Serve", "accept")
		}

		if err := s.sendHandshake(conn); err != nil {
			s.failures.Add(1)
			s.logger.Warn("Handshake send failed", "error", err)
			continue
		}
		s.served.Add(1)
		s.logger.Debug("Handshake sent", "ring_size", s.size)
	}
}

func (s *Server) sendHandshake(conn *net.UnixConn) error {
	defer conn.Close()

	msg, _ := Message{
		Type:     MessageHandshake,
		Version:  frame.Version,
		RingSize: s.size,
	}.MarshalBinary()

	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	n, oobn, err := conn.WriteMsgUnix(msg, unix.UnixRights(s.fd), nil)
	if err != nil {
		return errors.WrapTransient(err, "controlchannel", "sendHandshake", "write message")
	}
	if n != len(msg) || oobn == 0 {
		return errors.WrapTransient(fmt.Errorf("short write %d/%d bytes, %d oob", n, len(msg), oobn),
			"controlchannel", "sendHandshake", "write message")
	}
	return nil
}

// Served returns the number of successful handshakes
func (s *Server) Served() int64 {
	return s.served.Load()
}

// Path returns the socket path
func (s *Server) Path() string {
	return s.path
}

// Close stops listening and removes the socket path. Safe to call twice.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.listener.Close(); err != nil {
		return errors.WrapTransient(err, "controlchannel", "Close", "close listener")
	}
	return nil
}
