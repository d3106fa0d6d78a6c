package rx

import (
	"math/cmplx"

	"github.com/rjboer/gofhss/internal/dsp"
)

// AcquisitionEvent marks a detected hop start in the matched-filter stream.
type AcquisitionEvent struct {
	// HopIndex is the hop the demodulator was mixing at Position; -1 until
	// the receiver resolves it.
	HopIndex int64
	// Position is the baseband sample where the hop starts.
	Position int64
	// Fraction is the sub-sample offset of the peak in (-0.5, 0.5).
	Fraction float64
	// Peak is the normalized correlation magnitude in [0, 1].
	Peak float64
	// Phase is the carrier phase at the peak in radians.
	Phase float64
}

// Start returns Position+Fraction.
func (e AcquisitionEvent) Start() float64 { return float64(e.Position) + e.Fraction }

// Correlator finds sync word occurrences in a continuous sample stream. pos
// is the absolute index of x[0]; a gap in pos restarts the search.
type Correlator interface {
	Process(pos int64, x []complex64) []AcquisitionEvent
	Reset()
}

// SyncCorrelator is a Correlator that runs a normalized FFT cross-correlation
// against the sync word and reports one event per run of lags at or above
// the threshold, placed on the strongest lag of the run.
type SyncCorrelator struct {
	xc        *dsp.XCorr
	threshold float64

	buf      []complex64
	bufStart int64
	nextLag  int64

	prev     float64
	havePrev bool
	inRun    bool
	best     float64
	bestLag  int64
	bestCorr complex128
	bestPrev float64
	prevOK   bool
	bestNext float64
	haveNext bool
}

// NewSyncCorrelator correlates against template, which must already be in the
// matched-filter domain.
func NewSyncCorrelator(template []complex64, threshold float64) *SyncCorrelator {
	return &SyncCorrelator{xc: dsp.NewXCorr(template), threshold: threshold}
}

// Threshold returns the detection threshold.
func (c *SyncCorrelator) Threshold() float64 { return c.threshold }

// Reset drops buffered samples and any run in progress.
func (c *SyncCorrelator) Reset() {
	c.buf = c.buf[:0]
	c.bufStart = 0
	c.nextLag = 0
	c.prev = 0
	c.havePrev = false
	c.inRun = false
	c.haveNext = false
}

// Process implements Correlator.
func (c *SyncCorrelator) Process(pos int64, x []complex64) []AcquisitionEvent {
	if pos != c.bufStart+int64(len(c.buf)) {
		c.Reset()
		c.bufStart = pos
		c.nextLag = pos
	}
	c.buf = append(c.buf, x...)

	seg := c.buf[c.nextLag-c.bufStart:]
	corr, mag := c.xc.Normalized(seg)
	if len(mag) == 0 {
		return nil
	}

	var events []AcquisitionEvent
	for i, v := range mag {
		lag := c.nextLag + int64(i)
		switch {
		case v >= c.threshold && !c.inRun:
			c.inRun = true
			c.take(lag, v, corr[i])
		case v >= c.threshold && v > c.best:
			c.take(lag, v, corr[i])
		case c.inRun && !c.haveNext && lag == c.bestLag+1:
			c.bestNext = v
			c.haveNext = true
		}
		if c.inRun && v < c.threshold {
			events = append(events, c.emit())
		}
		c.prev = v
		c.havePrev = true
	}

	c.nextLag += int64(len(mag))
	if drop := c.nextLag - c.bufStart; drop > 0 {
		n := copy(c.buf, c.buf[drop:])
		c.buf = c.buf[:n]
		c.bufStart += drop
	}
	return events
}

func (c *SyncCorrelator) take(lag int64, v float64, corr complex128) {
	c.best = v
	c.bestLag = lag
	c.bestCorr = corr
	c.bestPrev = c.prev
	c.prevOK = c.havePrev
	c.haveNext = false
}

func (c *SyncCorrelator) emit() AcquisitionEvent {
	c.inRun = false
	var frac float64
	if c.prevOK && c.haveNext {
		frac = dsp.ParabolicPeak(c.bestPrev, c.best, c.bestNext)
	}
	return AcquisitionEvent{
		HopIndex: -1,
		Position: c.bestLag,
		Fraction: frac,
		Peak:     c.best,
		Phase:    cmplx.Phase(c.bestCorr),
	}
}

// AcquisitionGate accepts at most one event per hold-off interval so that
// sidelobes and repeated detections of the same hop are not acted upon.
type AcquisitionGate struct {
	holdOff  int64
	last     int64
	have     bool
	rejected int64
}

// NewAcquisitionGate returns a gate with the given hold-off in samples.
func NewAcquisitionGate(holdOff int) *AcquisitionGate {
	return &AcquisitionGate{holdOff: int64(holdOff)}
}

// Accept reports whether ev is far enough past the last accepted event.
func (g *AcquisitionGate) Accept(ev AcquisitionEvent) bool {
	if g.have && ev.Position-g.last < g.holdOff {
		g.rejected++
		return false
	}
	g.last = ev.Position
	g.have = true
	return true
}

// Rejected counts events dropped by the hold-off.
func (g *AcquisitionGate) Rejected() int64 { return g.rejected }

// Reset forgets the last accepted event.
func (g *AcquisitionGate) Reset() {
	g.have = false
}
