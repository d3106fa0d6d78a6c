// Package tx implements the transmit chain: PSK baseband modulation, hop
// interpolation and per-hop frequency translation.
package tx

import (
	"errors"
	"fmt"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/dsp"
	"github.com/rjboer/gofhss/internal/hop"
)

const (
	// IdleSymbol pads frames shorter than the geometry.
	IdleSymbol = 0

	rrcRolloff = 0.25
	rrcSpan    = 8
)

var (
	// ErrFrameOverflow is returned when a frame carries more symbols than
	// fit into one hop.
	ErrFrameOverflow = errors.New("frame exceeds symbols per hop")
	// ErrSymbolRange is returned for symbol indices outside [0, M).
	ErrSymbolRange = errors.New("symbol index out of range")
)

// BasebandModulator maps one frame of symbol indices to one baseband vector
// of SamplesPerVector samples with root-raised-cosine pulses.
type BasebandModulator struct {
	geom          hop.Geometry
	constellation *dsp.Constellation
	pulse         []float32
}

// NewBasebandModulator builds a modulator for the geometry and PSK order.
func NewBasebandModulator(geom hop.Geometry, order int) (*BasebandModulator, error) {
	c, err := dsp.NewPSK(order, 0)
	if err != nil || order > 8 {
		return nil, config.Invalid("modulation_order", order, "must be 2, 4 or 8")
	}
	taps := dsp.RootRaisedCosine(geom.SamplesPerSymbol, rrcRolloff, rrcSpan)
	pulse := make([]float32, len(taps))
	for i, v := range taps {
		pulse[i] = float32(v)
	}
	return &BasebandModulator{geom: geom, constellation: c, pulse: pulse}, nil
}

// Geometry returns the frame geometry in use.
func (m *BasebandModulator) Geometry() hop.Geometry { return m.geom }

// Constellation returns the transmit point set.
func (m *BasebandModulator) Constellation() *dsp.Constellation { return m.constellation }

// Modulate shapes symbols into a vector of SamplesPerVector samples. Symbol
// k peaks at sample Lead+k·SamplesPerSymbol. Short frames are padded with
// IdleSymbol; long frames are rejected with ErrFrameOverflow.
func (m *BasebandModulator) Modulate(symbols []int) ([]complex64, error) {
	n := m.geom.SymbolsPerFrame
	if len(symbols) > n {
		return nil, fmt.Errorf("%d symbols for %d-symbol frame: %w", len(symbols), n, ErrFrameOverflow)
	}
	order := m.constellation.Order()
	for i, s := range symbols {
		if s < 0 || s >= order {
			return nil, fmt.Errorf("symbol %d is %d for order %d: %w", i, s, order, ErrSymbolRange)
		}
	}

	out := make([]complex64, m.geom.SamplesPerVector)
	half := len(m.pulse) / 2
	lead := m.geom.Lead()
	for k := 0; k < n; k++ {
		idx := IdleSymbol
		if k < len(symbols) {
			idx = symbols[k]
		}
		a := m.constellation.Point(idx)
		re, im := real(a), imag(a)
		center := lead + k*m.geom.SamplesPerSymbol
		for j, h := range m.pulse {
			pos := center + j - half
			if pos < 0 || pos >= len(out) {
				continue
			}
			out[pos] += complex(re*h, im*h)
		}
	}
	return out, nil
}

// SymbolsFromBits packs bits, one per byte and most significant first, into
// indices of log2(order) bits. A trailing partial group is zero filled.
func SymbolsFromBits(bits []byte, order int) ([]int, error) {
	c, err := dsp.NewPSK(order, 0)
	if err != nil {
		return nil, err
	}
	k := c.BitsPerSymbol()
	out := make([]int, 0, (len(bits)+k-1)/k)
	for i := 0; i < len(bits); i += k {
		v := 0
		for j := 0; j < k; j++ {
			v <<= 1
			if i+j < len(bits) && bits[i+j] != 0 {
				v |= 1
			}
		}
		out = append(out, v)
	}
	return out, nil
}
