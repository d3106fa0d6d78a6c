package rx

import (
	"math"
	"math/cmplx"

	"github.com/rjboer/gofhss/internal/hop"
)

// SyncState is the acquisition state of the SymbolRecoverer.
type SyncState int

const (
	Unsynced SyncState = iota
	Synced
)

func (s SyncState) String() string {
	if s == Synced {
		return "synced"
	}
	return "unsynced"
}

// SymbolVector is one hop worth of de-rotated symbol samples.
type SymbolVector struct {
	Hop     int64
	Start   float64
	Symbols []complex64
}

// SymbolRecoverer samples the matched-filter stream at the symbol instants of
// each hop once an acquisition event has fixed the hop timing. Without an
// event it emits nothing; after one it free-runs at the hop length and
// re-anchors on every later event.
type SymbolRecoverer struct {
	geom   hop.Geometry
	hopLen float64
	maxBuf int

	state    SyncState
	buf      []complex64
	bufStart int64

	anchor float64
	hop    int64
	derot  complex64
	missed int64
}

// NewSymbolRecoverer returns an unsynced recoverer for geom. The buffer holds
// at most two hops of samples.
func NewSymbolRecoverer(geom hop.Geometry) *SymbolRecoverer {
	return &SymbolRecoverer{
		geom:   geom,
		hopLen: float64(geom.SamplesPerVector),
		maxBuf: 2 * geom.SamplesPerVector,
		derot:  1,
	}
}

// State returns the acquisition state.
func (s *SymbolRecoverer) State() SyncState { return s.state }

// Missed counts hops that were never emitted: their samples had left the
// buffer or a later acquisition jumped over them.
func (s *SymbolRecoverer) Missed() int64 { return s.missed }

// Buffered returns the number of samples held.
func (s *SymbolRecoverer) Buffered() int { return len(s.buf) }

// Reset returns to Unsynced and drops all samples.
func (s *SymbolRecoverer) Reset() {
	s.state = Unsynced
	s.buf = s.buf[:0]
	s.bufStart = 0
	s.derot = 1
}

// Push appends matched-filter samples starting at absolute index pos. A gap
// in pos drops the buffered samples. While synced the buffer is trimmed by
// Pop, so the samples of a pending hop survive until it is emitted.
func (s *SymbolRecoverer) Push(pos int64, y []complex64) {
	if pos != s.bufStart+int64(len(s.buf)) {
		s.buf = s.buf[:0]
		s.bufStart = pos
	}
	s.buf = append(s.buf, y...)
	if s.state == Unsynced {
		s.trim()
	}
}

// Anchor applies an acquisition event. Events for a hop that has already
// been emitted are ignored and false is returned. Pending hops the event
// jumps over are counted as missed.
func (s *SymbolRecoverer) Anchor(ev AcquisitionEvent) bool {
	start := ev.Start()
	if s.state == Synced {
		if start < s.anchor-s.hopLen/2 {
			return false
		}
		if skipped := int64(math.Round((start - s.anchor) / s.hopLen)); skipped > 0 {
			s.missed += skipped
		}
	}
	s.state = Synced
	s.anchor = start
	s.hop = ev.HopIndex
	s.derot = complex64(cmplx.Rect(1, -ev.Phase))
	return true
}

// Pop returns every hop whose symbol instants are all buffered.
func (s *SymbolRecoverer) Pop() []SymbolVector {
	if s.state != Synced {
		return nil
	}
	sps := float64(s.geom.SamplesPerSymbol)
	lead := float64(s.geom.Lead())
	n := s.geom.SymbolsPerFrame
	end := s.bufStart + int64(len(s.buf))

	var out []SymbolVector
	for {
		first := s.anchor + lead
		last := first + sps*float64(n-1)
		if int64(math.Floor(last))+1 >= end {
			break
		}
		if int64(math.Floor(first)) < s.bufStart {
			s.missed++
			s.advance()
			continue
		}
		syms := make([]complex64, n)
		for k := range syms {
			syms[k] = s.sample(first+sps*float64(k)) * s.derot
		}
		out = append(out, SymbolVector{Hop: s.hop, Start: s.anchor, Symbols: syms})
		s.advance()
	}
	s.trim()
	return out
}

func (s *SymbolRecoverer) advance() {
	s.anchor += s.hopLen
	s.hop++
}

// sample linearly interpolates the buffer at absolute time t.
func (s *SymbolRecoverer) sample(t float64) complex64 {
	i := int64(math.Floor(t))
	f := float32(t - float64(i))
	a := s.buf[i-s.bufStart]
	b := s.buf[i+1-s.bufStart]
	return a*complex(1-f, 0) + b*complex(f, 0)
}

// trim keeps at most maxBuf samples and, when synced, nothing older than
// half a hop before the next anchor.
func (s *SymbolRecoverer) trim() {
	keep := s.bufStart + int64(len(s.buf)) - int64(s.maxBuf)
	if s.state == Synced {
		if k := int64(math.Floor(s.anchor - s.hopLen/2)); k > keep {
			keep = k
		}
	}
	if drop := keep - s.bufStart; drop > 0 {
		if drop > int64(len(s.buf)) {
			drop = int64(len(s.buf))
		}
		n := copy(s.buf, s.buf[drop:])
		s.buf = s.buf[:n]
		s.bufStart += drop
	}
}
