package tx

import (
	"context"
	"fmt"
	"time"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/hop"
	"github.com/rjboer/gofhss/internal/logging"
)

// Config captures the transmitter parameters.
type Config struct {
	Geometry      hop.Geometry
	Order         int
	Interpolation int
	SampleRate    float64
	StartHop      int64
	// Hops limits Run to this many hops; zero runs until cancelled.
	Hops int
	// Pace releases hops at the on-air hop rate instead of as fast as the
	// sink accepts them.
	Pace bool
}

// FrameSource supplies one frame of symbol indices per hop.
type FrameSource interface {
	Next() []int
}

// Sink accepts wideband sample blocks.
type Sink interface {
	TX(ctx context.Context, iq []complex64) error
}

// Transmitter drives frame source, baseband modulator, interpolator and hop
// modulator, producing one HopBurst per hop index.
type Transmitter struct {
	cfg    Config
	src    FrameSource
	mod    *BasebandModulator
	interp *HopInterpolator
	hopper *HopModulator
	logger logging.Logger

	next int64
	sent int64
}

// NewTransmitter wires the transmit chain.
func NewTransmitter(cfg Config, sched *hop.Schedule, src FrameSource, logger logging.Logger) (*Transmitter, error) {
	if cfg.Interpolation <= 0 {
		return nil, config.Invalid("interpolation_factor", cfg.Interpolation, "must be positive")
	}
	if cfg.SampleRate <= 0 {
		return nil, config.Invalid("sample_rate", cfg.SampleRate, "must be positive")
	}
	if logger == nil {
		logger = logging.Default()
	}
	mod, err := NewBasebandModulator(cfg.Geometry, cfg.Order)
	if err != nil {
		return nil, err
	}
	return &Transmitter{
		cfg:    cfg,
		src:    src,
		mod:    mod,
		interp: NewHopInterpolator(cfg.Interpolation),
		hopper: NewHopModulator(sched, cfg.SampleRate),
		logger: logger.With(logging.F("subsystem", "tx")),
		next:   cfg.StartHop,
	}, nil
}

// Modulator exposes the baseband stage, which also generates sync words.
func (t *Transmitter) Modulator() *BasebandModulator { return t.mod }

// Sent returns the number of hops produced.
func (t *Transmitter) Sent() int64 { return t.sent }

// Next builds the burst of the next hop index.
func (t *Transmitter) Next() (HopBurst, error) {
	vec, err := t.mod.Modulate(t.src.Next())
	if err != nil {
		return HopBurst{}, fmt.Errorf("hop %d: %w", t.next, err)
	}
	burst := t.hopper.Modulate(t.next, t.interp.Interpolate(vec))
	t.next++
	t.sent++
	return burst, nil
}

// Run writes bursts to sink back to back until ctx is cancelled, the hop
// limit is reached or the sink fails. Cancellation is observed between hops.
func (t *Transmitter) Run(ctx context.Context, sink Sink) error {
	var tick <-chan time.Time
	if t.cfg.Pace {
		d := hop.HopDuration(t.cfg.Geometry, t.cfg.Interpolation, t.cfg.SampleRate)
		if d > 0 {
			ticker := time.NewTicker(d)
			defer ticker.Stop()
			tick = ticker.C
		}
	}

	t.logger.Info("transmitter started",
		logging.F("hop_rate", int(t.cfg.Geometry.Rate)),
		logging.F("start_hop", t.next),
		logging.F("hops", t.cfg.Hops))
	for {
		if t.cfg.Hops > 0 && t.sent >= int64(t.cfg.Hops) {
			t.logger.Info("transmitter finished", logging.F("hops", t.sent))
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		burst, err := t.Next()
		if err != nil {
			return err
		}
		if err := sink.TX(ctx, burst.Samples); err != nil {
			return fmt.Errorf("hop %d: %w", burst.Index, err)
		}
		t.logger.Debug("hop sent", logging.F("hop", burst.Index), logging.F("offset_hz", burst.OffsetHz))

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
	}
}
