// Package rx implements the receive chain: de-hopping, acquisition, symbol
// and frame recovery, and symbol decisions.
package rx

import (
	"github.com/rjboer/gofhss/internal/dsp"
	"github.com/rjboer/gofhss/internal/hop"
)

// maxSegments bounds the hop boundary history kept for HopAt.
const maxSegments = 16

// segment is one believed hop: its index, its first wideband sample and the
// sample where its oscillator phase is zero.
type segment struct {
	index    int64
	start    int64
	phaseRef int64
}

// HopDemodulator mixes the wideband stream down by the offset of the hop it
// believes is on air. Hops advance every hopLen samples; Resync moves the
// boundaries to an acquired hop. The hop pointer never decreases.
type HopDemodulator struct {
	sched  *hop.Schedule
	hopLen int64
	nco    *dsp.NCO

	pos       int64
	cur       segment
	history   []segment
	discarded int64

	// slipped is the boundary delay added by Slip since the last Resync.
	slipped int64
	slips   int64
}

// NewHopDemodulator returns a demodulator for hops of hopLen wideband samples.
func NewHopDemodulator(sched *hop.Schedule, hopLen int, sampleRate float64) *HopDemodulator {
	d := &HopDemodulator{
		sched:  sched,
		hopLen: int64(hopLen),
		nco:    dsp.NewNCO(0, sampleRate),
	}
	d.SetStart(0, 0)
	return d
}

// SetStart declares that hop index begins at wideband sample pos. It is meant
// for initialization and restarts the boundary history.
func (d *HopDemodulator) SetStart(index, pos int64) {
	d.cur = segment{index: index, start: pos, phaseRef: pos}
	d.history = append(d.history[:0], d.cur)
	d.slipped = 0
}

// Position is the absolute index of the next input sample.
func (d *HopDemodulator) Position() int64 { return d.pos }

// Index is the hop currently being mixed.
func (d *HopDemodulator) Index() int64 { return d.cur.index }

// Discarded counts resync requests rejected for pointing backwards.
func (d *HopDemodulator) Discarded() int64 { return d.discarded }

// Slips counts boundary slips made while searching.
func (d *HopDemodulator) Slips() int64 { return d.slips }

func (d *HopDemodulator) push(s segment) {
	d.cur = s
	if len(d.history) == maxSegments {
		copy(d.history, d.history[1:])
		d.history = d.history[:maxSegments-1]
	}
	d.history = append(d.history, s)
}

// Process mixes x, which continues the stream at Position, and returns the
// de-hopped samples. The pointer moves to the next hop as soon as the
// current one has been fully consumed.
func (d *HopDemodulator) Process(x []complex64) []complex64 {
	out := make([]complex64, len(x))
	for i := 0; ; {
		end := d.cur.start + d.hopLen
		if d.pos >= end {
			d.push(segment{index: d.cur.index + 1, start: end, phaseRef: end})
			continue
		}
		if i == len(x) {
			break
		}
		n := int(min(int64(len(x)-i), end-d.pos))
		d.nco.SetFrequency(-d.sched.Offset(d.cur.index))
		d.nco.Seek(d.pos - d.cur.phaseRef)
		d.nco.Mix(out[i:i+n], x[i:i+n])
		i += n
		d.pos += int64(n)
	}
	return out
}

// Resync aligns the hop boundaries so that hop index starts at wideband
// sample start. The hop containing the current position is derived from that
// alignment; if it lies behind the current hop the request is discarded and
// false is returned. When the current hop keeps its index only its boundary
// moves, so its phase reference stays continuous.
func (d *HopDemodulator) Resync(index, start int64) bool {
	j := index + floorDiv(d.pos-start, d.hopLen)
	newStart := start + (j-index)*d.hopLen
	switch {
	case j < d.cur.index:
		d.discarded++
		return false
	case j == d.cur.index:
		d.cur.start = newStart
		d.history[len(d.history)-1] = d.cur
	default:
		d.push(segment{index: j, start: newStart, phaseRef: newStart})
	}
	d.slipped = 0
	return true
}

// Slip delays the boundaries by half a hop while keeping the current index,
// so a transmitter lagging by an unknown delay falls inside one of the
// believed hops. Once the added delay would exceed maxLag samples the
// boundaries return to the alignment of the last Resync by skipping hops
// forward. Slip reports the delay now added.
func (d *HopDemodulator) Slip(maxLag int64) int64 {
	step := d.hopLen / 2
	if d.slipped+step > maxLag {
		back := d.slipped
		d.Resync(d.cur.index, d.cur.start-back)
		return 0
	}
	d.slipped += step
	d.slips++
	d.cur.start += step
	d.history[len(d.history)-1] = d.cur
	return d.slipped
}

// HopAt returns the hop index that was, or will be, mixed at wideband
// sample pos according to the boundary history.
func (d *HopDemodulator) HopAt(pos int64) int64 {
	for i := len(d.history) - 1; i >= 0; i-- {
		s := d.history[i]
		if s.start <= pos {
			return s.index + floorDiv(pos-s.start, d.hopLen)
		}
	}
	s := d.history[0]
	return s.index + floorDiv(pos-s.start, d.hopLen)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
