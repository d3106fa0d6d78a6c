package dsp

import (
	"math"
	"math/cmplx"
)

// CostasLoop is a second-order decision-directed carrier loop over symbol
// samples. The phase detector compares each sample with its nearest point
// in the constellation, which generalizes the BPSK/QPSK Costas detectors to
// any PSK order.
type CostasLoop struct {
	constellation *Constellation
	alpha, beta   float64
	phase, freq   float64
	maxFreq       float64
}

// NewCostasLoop builds a loop with the given normalized loop bandwidth and a
// damping factor of 1/√2.
func NewCostasLoop(c *Constellation, loopBW float64) *CostasLoop {
	damping := math.Sqrt2 / 2
	denom := 1 + 2*damping*loopBW + loopBW*loopBW
	return &CostasLoop{
		constellation: c,
		alpha:         4 * damping * loopBW / denom,
		beta:          4 * loopBW * loopBW / denom,
		maxFreq:       math.Pi / 4,
	}
}

// Reset clears the loop state.
func (l *CostasLoop) Reset() {
	l.phase = 0
	l.freq = 0
}

// Phase returns the current phase correction in radians.
func (l *CostasLoop) Phase() float64 { return l.phase }

// Track rotates each symbol by the loop estimate in place and updates the
// loop from the residual error.
func (l *CostasLoop) Track(sym []complex64) {
	for i, z := range sym {
		rot := complex64(cmplx.Exp(complex(0, -l.phase)))
		y := z * rot
		sym[i] = y
		e := l.constellation.PhaseError(y)

		l.freq += l.beta * e
		if l.freq > l.maxFreq {
			l.freq = l.maxFreq
		} else if l.freq < -l.maxFreq {
			l.freq = -l.maxFreq
		}
		l.phase += l.freq + l.alpha*e
		l.phase = math.Remainder(l.phase, 2*math.Pi)
	}
}
