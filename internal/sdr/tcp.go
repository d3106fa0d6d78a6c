package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/rjboer/gofhss/internal/logging"
)

const defaultDialTimeout = 30 * time.Second

// TCPSink streams samples to a TCPSource at Config.URI. The receiver may
// start later than the transmitter: dialing is retried with exponential
// back-off until DialTimeout.
type TCPSink struct {
	Logger logging.Logger

	conn net.Conn
	w    *bufio.Writer
	fmt  SampleFormat
	buf  []byte
}

// Init connects to the receiver.
func (s *TCPSink) Init(ctx context.Context, cfg Config) error {
	logger := s.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout

	var conn net.Conn
	dial := func() error {
		d := net.Dialer{Timeout: 3 * time.Second}
		c, err := d.DialContext(ctx, "tcp", cfg.URI)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug("sample stream dial failed", logging.F("addr", cfg.URI), logging.F("retry_in", wait), logging.F("err", err))
	}
	if err := backoff.RetryNotify(dial, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.URI, err)
	}
	logger.Info("sample stream connected", logging.F("addr", cfg.URI), logging.F("format", cfg.Format.String()))
	s.conn = conn
	s.w = bufio.NewWriterSize(conn, 1<<16)
	s.fmt = cfg.Format
	return nil
}

// TX writes iq to the connection.
func (s *TCPSink) TX(ctx context.Context, iq []complex64) error {
	if s.conn == nil {
		return ErrClosed
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(dl)
	}
	s.buf = s.fmt.Encode(s.buf[:0], iq)
	if _, err := s.w.Write(s.buf); err != nil {
		return fmt.Errorf("tcp sink: %w", err)
	}
	return nil
}

// Close flushes and closes the connection; the receiver sees io.EOF.
func (s *TCPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := errors.Join(s.w.Flush(), s.conn.Close())
	s.conn, s.w = nil, nil
	return err
}

// TCPSource listens on Config.URI and receives from the first sink that
// connects.
type TCPSource struct {
	mu   sync.Mutex
	ln   net.Listener
	conn net.Conn
	r    *bufio.Reader
	fmt  SampleFormat
	n    int
	buf  []byte
}

// Init starts listening. The connection is accepted by the first RX.
func (s *TCPSource) Init(_ context.Context, cfg Config) error {
	ln, err := net.Listen("tcp", cfg.URI)
	if err != nil {
		return fmt.Errorf("tcp source: %w", err)
	}
	s.ln = ln
	s.fmt = cfg.Format
	s.n = cfg.blockSize()
	s.buf = make([]byte, s.n*s.fmt.Size())
	return nil
}

// Addr returns the listening address.
func (s *TCPSource) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// RX returns the next block, waiting for a connection first.
func (s *TCPSource) RX(ctx context.Context) ([]complex64, error) {
	if s.r == nil {
		if err := s.accept(ctx); err != nil {
			return nil, err
		}
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	}
	return readBlock(s.r, s.fmt, s.n, s.buf)
}

func (s *TCPSource) accept(ctx context.Context) error {
	if s.ln == nil {
		return io.EOF
	}
	type result struct {
		c   net.Conn
		err error
	}
	done := make(chan result, 1)
	go func() {
		c, err := s.ln.Accept()
		done <- result{c, err}
	}()
	select {
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("tcp source accept: %w", res.err)
		}
		s.mu.Lock()
		s.conn = res.c
		s.mu.Unlock()
		s.r = bufio.NewReaderSize(res.c, 1<<16)
		return nil
	case <-ctx.Done():
		_ = s.ln.Close()
		return ctx.Err()
	}
}

// Close stops listening and closes the connection.
func (s *TCPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		s.ln = nil
	}
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	return errors.Join(errs...)
}
