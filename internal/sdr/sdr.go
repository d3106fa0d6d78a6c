// Package sdr is the radio boundary of the link: flat complex64 sample
// streams in and out, with a simulated channel, raw files and TCP streams as
// backends.
package sdr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by TX after Close.
var ErrClosed = errors.New("sdr: closed")

// Config carries parameters required to initialize a backend. Fields a
// backend has no use for are ignored.
type Config struct {
	SampleRate float64
	TxGain     float64
	RxGain     float64
	// URI is a file path for the file backend and host:port for tcp.
	URI string
	// Format is the on-wire sample encoding of the file and tcp backends.
	Format SampleFormat
	// BlockSize is the number of samples returned per RX call.
	BlockSize int
	// DialTimeout bounds the connection retries of the tcp sink.
	DialTimeout time.Duration

	// Loopback channel model.
	DelaySamples int
	NoiseStd     float64
	Gain         float64
	Depth        int
	Seed         uint64
}

// Sink consumes transmitted samples.
type Sink interface {
	Init(ctx context.Context, cfg Config) error
	TX(ctx context.Context, iq []complex64) error
	Close() error
}

// Source yields received samples. io.EOF marks the end of the stream.
type Source interface {
	Init(ctx context.Context, cfg Config) error
	RX(ctx context.Context) ([]complex64, error)
	Close() error
}

const defaultBlockSize = 32768

func (c Config) blockSize() int {
	if c.BlockSize <= 0 {
		return defaultBlockSize
	}
	return c.BlockSize
}

// NewSink returns an uninitialized sink for backend "file" or "tcp".
func NewSink(backend string) (Sink, error) {
	switch backend {
	case "file":
		return &FileSink{}, nil
	case "tcp":
		return &TCPSink{}, nil
	}
	return nil, fmt.Errorf("unknown sink backend %q", backend)
}

// NewSource returns an uninitialized source for backend "file" or "tcp".
func NewSource(backend string) (Source, error) {
	switch backend {
	case "file":
		return &FileSource{}, nil
	case "tcp":
		return &TCPSource{}, nil
	}
	return nil, fmt.Errorf("unknown source backend %q", backend)
}
