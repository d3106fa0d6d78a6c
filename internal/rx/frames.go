package rx

// RecoveredFrame is one complete frame of soft symbols and, once decided,
// their symbol indices.
type RecoveredFrame struct {
	Seq     int64
	Hop     int64
	Soft    []complex64
	Symbols []int
}

// FrameRecoverer assembles symbol vectors into frames of exactly
// symbolsPerFrame soft symbols, emitted in arrival order. A vector that does
// not fit into the frame under construction discards that partial frame and
// starts a new one.
type FrameRecoverer struct {
	size      int
	acc       []complex64
	hop       int64
	seq       int64
	overflows int64
}

// NewFrameRecoverer returns an empty recoverer.
func NewFrameRecoverer(symbolsPerFrame int) *FrameRecoverer {
	return &FrameRecoverer{size: symbolsPerFrame, acc: make([]complex64, 0, symbolsPerFrame)}
}

// Overflows counts partial frames discarded by drop-and-restart.
func (f *FrameRecoverer) Overflows() int64 { return f.overflows }

// Pending is the number of symbols waiting for the current frame.
func (f *FrameRecoverer) Pending() int { return len(f.acc) }

// Push adds a vector of soft symbols received on hop and returns the frames
// it completes.
func (f *FrameRecoverer) Push(hop int64, vec []complex64) []RecoveredFrame {
	if len(f.acc)+len(vec) > f.size {
		if len(f.acc) > 0 {
			f.overflows++
		}
		f.acc = f.acc[:0]
	}
	if len(f.acc) == 0 {
		f.hop = hop
	}

	var out []RecoveredFrame
	for len(vec) > 0 {
		n := min(f.size-len(f.acc), len(vec))
		f.acc = append(f.acc, vec[:n]...)
		vec = vec[n:]
		if len(f.acc) == f.size {
			out = append(out, RecoveredFrame{
				Seq:  f.seq,
				Hop:  f.hop,
				Soft: append([]complex64(nil), f.acc...),
			})
			f.seq++
			f.acc = f.acc[:0]
			f.hop = hop
		}
	}
	return out
}

// Reset discards any partial frame.
func (f *FrameRecoverer) Reset() {
	f.acc = f.acc[:0]
}
