package sdr

import (
	"context"
	"io"
	"math"
	"sync"

	"gonum.org/v1/gonum/mathext/prng"
	"gonum.org/v1/gonum/stat/distuv"
)

const defaultDepth = 4

// Loopback is a Sink and Source pair joined by a simulated channel. Each
// transmitted block is scaled by Gain, gets complex white Gaussian noise of
// standard deviation NoiseStd and is queued for RX. DelaySamples zeros are
// received before the first transmitted sample. The queue holds Depth blocks,
// so TX blocks while the receiver lags.
type Loopback struct {
	mu      sync.Mutex
	cfg     Config
	ch      chan []complex64
	noise   *distuv.Normal
	delayed bool
	closed  bool
}

// NewLoopback returns an uninitialized loopback channel.
func NewLoopback() *Loopback { return &Loopback{} }

// Init applies cfg. Gain 0 is treated as unity.
func (l *Loopback) Init(_ context.Context, cfg Config) error {
	if cfg.Gain == 0 {
		cfg.Gain = 1
	}
	if cfg.Depth <= 0 {
		cfg.Depth = defaultDepth
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.ch = make(chan []complex64, cfg.Depth)
	l.delayed = false
	l.closed = false
	l.noise = nil
	if cfg.NoiseStd > 0 {
		src := prng.NewMT19937()
		src.Seed(cfg.Seed)
		// per-component sigma so the complex noise has NoiseStd overall
		l.noise = &distuv.Normal{Mu: 0, Sigma: cfg.NoiseStd / math.Sqrt2, Src: src}
	}
	return nil
}

// TX passes iq through the channel model and queues it. It must not be called
// concurrently with Close.
func (l *Loopback) TX(ctx context.Context, iq []complex64) error {
	l.mu.Lock()
	if l.closed || l.ch == nil {
		l.mu.Unlock()
		return ErrClosed
	}
	var block []complex64
	if !l.delayed {
		block = make([]complex64, l.cfg.DelaySamples, l.cfg.DelaySamples+len(iq))
		l.delayed = true
	}
	g := complex64(complex(l.cfg.Gain, 0))
	for _, v := range iq {
		v *= g
		if l.noise != nil {
			v += complex(float32(l.noise.Rand()), float32(l.noise.Rand()))
		}
		block = append(block, v)
	}
	ch := l.ch
	l.mu.Unlock()

	select {
	case ch <- block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RX returns the next queued block, or io.EOF once the channel is closed and
// drained.
func (l *Loopback) RX(ctx context.Context) ([]complex64, error) {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()
	if ch == nil {
		return nil, io.EOF
	}
	select {
	case block, ok := <-ch:
		if !ok {
			return nil, io.EOF
		}
		return block, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the stream. Blocks already queued are still received.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed && l.ch != nil {
		close(l.ch)
	}
	l.closed = true
	return nil
}
