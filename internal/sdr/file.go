package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileSink appends samples to Config.URI.
type FileSink struct {
	f   *os.File
	w   *bufio.Writer
	fmt SampleFormat
	buf []byte
}

// Init creates or truncates the file.
func (s *FileSink) Init(_ context.Context, cfg Config) error {
	if cfg.URI == "" {
		return errors.New("file sink: empty path")
	}
	f, err := os.Create(cfg.URI)
	if err != nil {
		return fmt.Errorf("file sink: %w", err)
	}
	s.f = f
	s.w = bufio.NewWriterSize(f, 1<<20)
	s.fmt = cfg.Format
	return nil
}

// TX writes iq.
func (s *FileSink) TX(_ context.Context, iq []complex64) error {
	if s.w == nil {
		return ErrClosed
	}
	s.buf = s.fmt.Encode(s.buf[:0], iq)
	if _, err := s.w.Write(s.buf); err != nil {
		return fmt.Errorf("file sink: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *FileSink) Close() error {
	if s.f == nil {
		return nil
	}
	err := errors.Join(s.w.Flush(), s.f.Close())
	s.f, s.w = nil, nil
	return err
}

// FileSource reads Config.URI in blocks of Config.BlockSize samples.
type FileSource struct {
	f   *os.File
	r   *bufio.Reader
	fmt SampleFormat
	n   int
	buf []byte
}

// Init opens the file.
func (s *FileSource) Init(_ context.Context, cfg Config) error {
	f, err := os.Open(cfg.URI)
	if err != nil {
		return fmt.Errorf("file source: %w", err)
	}
	s.f = f
	s.r = bufio.NewReaderSize(f, 1<<20)
	s.fmt = cfg.Format
	s.n = cfg.blockSize()
	s.buf = make([]byte, s.n*s.fmt.Size())
	return nil
}

// RX returns the next block; io.EOF at end of file.
func (s *FileSource) RX(ctx context.Context) ([]complex64, error) {
	if s.r == nil {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readBlock(s.r, s.fmt, s.n, s.buf)
}

// Close closes the file.
func (s *FileSource) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f, s.r = nil, nil
	return err
}
