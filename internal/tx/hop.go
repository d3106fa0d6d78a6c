package tx

import (
	"github.com/rjboer/gofhss/internal/dsp"
	"github.com/rjboer/gofhss/internal/hop"
)

// interpSidelobes is the number of sinc zero crossings per side of the
// interpolation filter.
const interpSidelobes = 4

// HopBurst is one hop of wideband samples translated to its channel.
type HopBurst struct {
	Index    int64
	OffsetHz float64
	Samples  []complex64
}

// HopInterpolator raises a baseband vector to the wideband rate. Each vector
// is filtered on its own; nothing carries over into the next hop.
type HopInterpolator struct {
	interp *dsp.Interpolator
}

// NewHopInterpolator builds an interpolator for the given factor.
func NewHopInterpolator(factor int) *HopInterpolator {
	return &HopInterpolator{interp: dsp.NewInterpolator(factor, interpSidelobes)}
}

// Factor returns the interpolation ratio.
func (h *HopInterpolator) Factor() int { return h.interp.Factor() }

// Interpolate returns len(vec)·Factor samples.
func (h *HopInterpolator) Interpolate(vec []complex64) []complex64 {
	return h.interp.Interpolate(vec)
}

// HopModulator moves each hop to the offset the schedule assigns to its
// index. The oscillator phase restarts at zero on every hop.
type HopModulator struct {
	sched      *hop.Schedule
	sampleRate float64
	nco        *dsp.NCO
}

// NewHopModulator returns a modulator for sched at sampleRate.
func NewHopModulator(sched *hop.Schedule, sampleRate float64) *HopModulator {
	return &HopModulator{sched: sched, sampleRate: sampleRate, nco: dsp.NewNCO(0, sampleRate)}
}

// Modulate translates in to the channel of hop index.
func (m *HopModulator) Modulate(index int64, in []complex64) HopBurst {
	f := m.sched.Offset(index)
	m.nco.SetFrequency(f)
	m.nco.Reset()
	return HopBurst{Index: index, OffsetHz: f, Samples: m.nco.Mix(nil, in)}
}
