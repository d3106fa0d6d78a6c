// Package frame builds the per-hop slot frames and handles the sync word and
// reference symbol files shared by the transmitter and receiver.
package frame

import (
	"gonum.org/v1/gonum/mathext/prng"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/hop"
)

// HeaderSeed seeds the header generator. The header is the same for every
// session so the receiver can correlate against a stored sync word.
const HeaderSeed = 2025

// Source emits one slot frame of symbol indices per hop: a fixed header
// followed by the payload drawn from the info seed. The payload generator is
// reseeded every cycle frames, so with cycle 1 every frame is identical.
type Source struct {
	geom     hop.Geometry
	order    int
	infoSeed int64
	cycle    int

	header  []int
	payload *prng.MT19937
	count   int64
}

// NewSource validates the parameters and prepares the header.
func NewSource(geom hop.Geometry, order int, infoSeed int64, cycle int) (*Source, error) {
	switch {
	case order != 2 && order != 4 && order != 8:
		return nil, config.Invalid("modulation_order", order, "must be 2, 4 or 8")
	case infoSeed < 0:
		return nil, config.Invalid("info_seed", infoSeed, "must not be negative")
	case cycle < 1:
		return nil, config.Invalid("frame_cycle", cycle, "must be at least 1")
	}

	head := prng.NewMT19937()
	head.Seed(HeaderSeed)
	header := make([]int, geom.HeaderSymbols)
	for i := range header {
		header[i] = draw(head, order)
	}

	s := &Source{
		geom:     geom,
		order:    order,
		infoSeed: infoSeed,
		cycle:    cycle,
		header:   header,
		payload:  prng.NewMT19937(),
	}
	return s, nil
}

// draw maps one 32-bit output uniformly onto [0, m).
func draw(src *prng.MT19937, m int) int {
	return int(uint64(src.Uint32()) * uint64(m) >> 32)
}

// Header returns a copy of the header symbols.
func (s *Source) Header() []int {
	return append([]int(nil), s.header...)
}

// Count is the number of frames emitted so far.
func (s *Source) Count() int64 { return s.count }

// Next returns the next frame of SymbolsPerFrame indices in [0, order).
func (s *Source) Next() []int {
	if s.count%int64(s.cycle) == 0 {
		s.payload.Seed(uint64(s.infoSeed))
	}
	s.count++

	out := make([]int, s.geom.SymbolsPerFrame)
	n := copy(out, s.header)
	for i := n; i < len(out); i++ {
		out[i] = draw(s.payload, s.order)
	}
	return out
}

// Cycle returns the frames that make up one full repetition of the payload,
// from a fresh source with the same parameters.
func Cycle(geom hop.Geometry, order int, infoSeed int64, cycle int) ([][]int, error) {
	src, err := NewSource(geom, order, infoSeed, cycle)
	if err != nil {
		return nil, err
	}
	frames := make([][]int, cycle)
	for i := range frames {
		frames[i] = src.Next()
	}
	return frames, nil
}
