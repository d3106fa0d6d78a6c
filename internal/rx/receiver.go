package rx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/dsp"
	"github.com/rjboer/gofhss/internal/frame"
	"github.com/rjboer/gofhss/internal/hop"
	"github.com/rjboer/gofhss/internal/logging"
)

const (
	decimSidelobes = 4
	rrcRolloff     = 0.25
	rrcSpan        = 8

	// defaultSearchHops is the number of hops without an accepted
	// acquisition before the hop boundaries start slipping.
	defaultSearchHops = 4
	// defaultSearchLagHops bounds the delay the search covers.
	defaultSearchLagHops = 8
)

// Config captures the receiver parameters.
type Config struct {
	Geometry      hop.Geometry
	Order         int
	Interpolation int
	SampleRate    float64
	Threshold     float64
	StartHop      int64
	// ChunkSamples splits input blocks so resyncs take effect sooner.
	// Zero selects a quarter hop; at most two hops are allowed.
	ChunkSamples int
	// SearchHops is the number of hops without an accepted acquisition after
	// which the hop boundaries slip by half a hop to look for a delayed
	// transmitter. Zero selects 4; a negative value disables the search.
	SearchHops int
	// SearchLagHops is the largest delay, in hops, the search covers. Zero
	// selects 8.
	SearchLagHops int
	// CarrierLoop enables the Costas loop on recovered symbols.
	CarrierLoop bool
}

// Stats is a snapshot of receiver counters.
type Stats struct {
	Samples       int64
	Events        int64
	Accepted      int64
	GateRejected  int64
	ResyncDropped int64
	Frames        int64
	Overflows     int64
	MissedHops    int64
	Slips         int64
	State         SyncState
	Hop           int64
	LastEvent     AcquisitionEvent
}

// Source yields wideband sample blocks; io.EOF ends the stream.
type Source interface {
	RX(ctx context.Context) ([]complex64, error)
}

// Receiver drives de-hopping, decimation, matched filtering, acquisition,
// symbol and frame recovery and decisions over a continuous sample stream.
type Receiver struct {
	cfg    Config
	logger logging.Logger

	demod   *HopDemodulator
	decim   *dsp.Decimator
	mf      *dsp.Decimator
	corr    Correlator
	gate    *AcquisitionGate
	symbols *SymbolRecoverer
	frames  *FrameRecoverer
	decider Decider
	carrier CarrierRecovery

	onEvent func(AcquisitionEvent)
	stats   Stats

	// syncMid is the wideband offset of the middle of the sync word from
	// the hop start.
	syncMid int64
	maxLag  int64
	idleRef int64
}

// NewReceiver wires the receive chain. sync is the rotated sync word as
// returned by frame.LoadSyncWord.
func NewReceiver(cfg Config, sched *hop.Schedule, sync frame.SyncWord, logger logging.Logger) (*Receiver, error) {
	switch {
	case cfg.Interpolation <= 0:
		return nil, config.Invalid("interpolation_factor", cfg.Interpolation, "must be positive")
	case cfg.SampleRate <= 0:
		return nil, config.Invalid("sample_rate", cfg.SampleRate, "must be positive")
	case cfg.Threshold <= 0 || cfg.Threshold > 1:
		return nil, config.Invalid("corr_threshold", cfg.Threshold, "must be in (0,1]")
	case len(sync) == 0:
		return nil, fmt.Errorf("empty sync word: %w", frame.ErrMalformed)
	}
	if logger == nil {
		logger = logging.Default()
	}
	decider, err := NewConstellationDecider(cfg.Order)
	if err != nil {
		return nil, config.Invalid("modulation_order", cfg.Order, err.Error())
	}

	hopLen := cfg.Geometry.HopSamples(cfg.Interpolation)
	switch {
	case cfg.ChunkSamples < 0 || cfg.ChunkSamples > 2*hopLen:
		return nil, fmt.Errorf("chunk of %d samples for %d-sample hops: must be at most two hops", cfg.ChunkSamples, hopLen)
	case cfg.ChunkSamples == 0:
		cfg.ChunkSamples = max(hopLen/4, 1)
	}
	if cfg.SearchHops == 0 {
		cfg.SearchHops = defaultSearchHops
	}
	if cfg.SearchLagHops <= 0 {
		cfg.SearchLagHops = defaultSearchLagHops
	}
	rrc := dsp.RootRaisedCosine(cfg.Geometry.SamplesPerSymbol, rrcRolloff, rrcSpan)

	r := &Receiver{
		cfg:     cfg,
		logger:  logger.With(logging.F("subsystem", "rx")),
		demod:   NewHopDemodulator(sched, hopLen, cfg.SampleRate),
		decim:   dsp.NewDecimator(dsp.DesignLowpass(cfg.Interpolation, decimSidelobes, 1), cfg.Interpolation),
		mf:      dsp.NewDecimator(rrc, 1),
		corr:    NewSyncCorrelator(MatchedTemplate(sync, rrc), cfg.Threshold),
		gate:    NewAcquisitionGate(3 * cfg.Geometry.SamplesPerVector / 4),
		symbols: NewSymbolRecoverer(cfg.Geometry),
		frames:  NewFrameRecoverer(cfg.Geometry.SymbolsPerFrame),
		decider: decider,
		syncMid: int64(cfg.Geometry.SyncLength() * cfg.Interpolation / 2),
		maxLag:  int64(cfg.SearchLagHops) * int64(hopLen),
		idleRef: cfg.StartHop,
	}
	if cfg.CarrierLoop {
		cr, err := NewCostasRecovery(cfg.Order)
		if err != nil {
			return nil, err
		}
		r.carrier = cr
	}
	r.demod.SetStart(cfg.StartHop, 0)
	return r, nil
}

// MatchedTemplate filters the sync word with the matched filter so it can be
// compared with the matched-filter output.
func MatchedTemplate(sync frame.SyncWord, taps []float64) []complex64 {
	mf := dsp.NewDecimator(taps, 1)
	padded := make([]complex64, len(sync)+mf.Lookahead())
	copy(padded, sync)
	return mf.Process(padded)
}

// SetCorrelator replaces the acquisition correlator.
func (r *Receiver) SetCorrelator(c Correlator) { r.corr = c }

// SetDecider replaces the symbol decision.
func (r *Receiver) SetDecider(d Decider) { r.decider = d }

// OnAcquisition registers fn to be called with every accepted event.
func (r *Receiver) OnAcquisition(fn func(AcquisitionEvent)) { r.onEvent = fn }

// Stats returns a snapshot of the counters.
func (r *Receiver) Stats() Stats {
	s := r.stats
	s.ResyncDropped = r.demod.Discarded()
	s.GateRejected = r.gate.Rejected()
	s.Overflows = r.frames.Overflows()
	s.MissedHops = r.symbols.Missed()
	s.Slips = r.demod.Slips()
	s.State = r.symbols.State()
	s.Hop = r.demod.Index()
	return s
}

// Process consumes the next block of the wideband stream and returns the
// frames it completes, decided.
func (r *Receiver) Process(x []complex64) []RecoveredFrame {
	var out []RecoveredFrame
	for len(x) > 0 {
		n := min(r.cfg.ChunkSamples, len(x))
		out = append(out, r.processChunk(x[:n])...)
		x = x[n:]
	}
	return out
}

func (r *Receiver) processChunk(x []complex64) []RecoveredFrame {
	r.stats.Samples += int64(len(x))
	bb := r.decim.Process(r.demod.Process(x))
	pos := r.mf.Next()
	y := r.mf.Process(bb)
	if len(y) == 0 {
		return nil
	}

	r.symbols.Push(pos, y)
	factor := float64(r.cfg.Interpolation)
	var vecs []SymbolVector
	for _, ev := range r.corr.Process(pos, y) {
		r.stats.Events++
		wide := int64(math.Round(ev.Start() * factor))
		// the peak only clears the threshold when the sync word was mixed
		// with the right offset, so the hop is the one mixed at its middle
		ev.HopIndex = r.demod.HopAt(wide + r.syncMid)
		if !r.gate.Accept(ev) {
			continue
		}
		if !r.demod.Resync(ev.HopIndex, wide) {
			r.logger.Debug("stale acquisition discarded", logging.F("hop", ev.HopIndex), logging.F("pos", ev.Position))
			continue
		}
		// hops completed before this event are emitted on the old anchor
		vecs = append(vecs, r.symbols.Pop()...)
		r.symbols.Anchor(ev)
		r.idleRef = ev.HopIndex
		r.stats.Accepted++
		r.stats.LastEvent = ev
		r.logger.Debug("hop acquired",
			logging.F("hop", ev.HopIndex),
			logging.F("pos", ev.Position),
			logging.F("peak", ev.Peak),
			logging.F("phase", ev.Phase))
		if r.onEvent != nil {
			r.onEvent(ev)
		}
	}

	vecs = append(vecs, r.symbols.Pop()...)
	r.search()

	var out []RecoveredFrame
	for _, vec := range vecs {
		if r.carrier != nil {
			r.carrier.Track(vec.Symbols)
		}
		for _, f := range r.frames.Push(vec.Hop, vec.Symbols) {
			f.Symbols = r.decider.Decide(f.Soft)
			r.stats.Frames++
			out = append(out, f)
		}
	}
	return out
}

// search slips the hop boundaries after SearchHops hops without an accepted
// acquisition.
func (r *Receiver) search() {
	if r.cfg.SearchHops < 0 || r.demod.Index()-r.idleRef < int64(r.cfg.SearchHops) {
		return
	}
	lag := r.demod.Slip(r.maxLag)
	r.idleRef = r.demod.Index()
	r.logger.Debug("searching for hop timing", logging.F("hop", r.idleRef), logging.F("lag_samples", lag))
}

// Run reads src until ctx is cancelled or the stream ends, handing every
// frame to handle. A clean end of stream returns nil.
func (r *Receiver) Run(ctx context.Context, src Source, handle func(RecoveredFrame)) error {
	r.logger.Info("receiver started",
		logging.F("hop_rate", int(r.cfg.Geometry.Rate)),
		logging.F("threshold", r.cfg.Threshold),
		logging.F("start_hop", r.cfg.StartHop))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		block, err := src.RX(ctx)
		if errors.Is(err, io.EOF) {
			st := r.Stats()
			r.logger.Info("receiver input ended", logging.F("frames", st.Frames), logging.F("acquisitions", st.Accepted))
			return nil
		}
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		for _, f := range r.Process(block) {
			if handle != nil {
				handle(f)
			}
		}
	}
}
