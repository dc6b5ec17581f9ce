package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultWriteTimeout bounds how long a record write may block.
	DefaultWriteTimeout = 250 * time.Millisecond
	// DefaultConnectTimeout bounds connection establishment.
	DefaultConnectTimeout = 5 * time.Second
)

// Stage identifies where delivery failed.
type Stage string

const (
	StageConnect   Stage = "connect"
	StageConfigure Stage = "configure"
	StageWrite     Stage = "write"
)

// TransportError is returned when a record could not be delivered.
type TransportError struct {
	Stage Stage
	Addr  string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send to collector %s: %s: %v", e.Addr, e.Stage, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// DialFunc opens a connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Sender delivers payloads over TCP, one connection per payload.
type Sender struct {
	dial         DialFunc
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithWriteTimeout overrides the write deadline.
func WithWriteTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithConnectTimeout overrides the connect timeout used by the default dialer.
func WithConnectTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.dial = (&net.Dialer{Timeout: d}).DialContext
		}
	}
}

// WithDialer replaces how connections are opened.
func WithDialer(dial DialFunc) SenderOption {
	return func(s *Sender) {
		s.dial = dial
	}
}

// NewSender creates a new Sender.
func NewSender(logger zerolog.Logger, opts ...SenderOption) *Sender {
	s := &Sender{
		dial:         (&net.Dialer{Timeout: DefaultConnectTimeout}).DialContext,
		writeTimeout: DefaultWriteTimeout,
		logger:       logger.With().Str("component", "telemetry").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send writes payload to addr in a single write and returns the bytes written.
// The connection is closed in both directions on every return path. Nothing is
// read back from the collector.
func (s *Sender) Send(ctx context.Context, addr string, payload []byte) (int, error) {
	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		return 0, &TransportError{Stage: StageConnect, Addr: addr, Err: err}
	}
	defer s.shutdown(conn)

	if err := conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return 0, &TransportError{Stage: StageConfigure, Addr: addr, Err: err}
	}

	n, err := conn.Write(payload)
	if err != nil {
		return n, &TransportError{Stage: StageWrite, Addr: addr, Err: err}
	}

	s.logger.Debug().Str("addr", addr).Int("bytes", n).Msg("record sent")
	return n, nil
}

type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// shutdown closes both directions and releases the connection.
func (s *Sender) shutdown(conn net.Conn) {
	if hc, ok := conn.(halfCloser); ok {
		if err := hc.CloseWrite(); err != nil && !errors.Is(err, syscall.ENOTCONN) {
			s.logger.Debug().Err(err).Msg("close write side")
		}
		if err := hc.CloseRead(); err != nil && !errors.Is(err, syscall.ENOTCONN) {
			s.logger.Debug().Err(err).Msg("close read side")
		}
	}
	if err := conn.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("close connection")
	}
}
