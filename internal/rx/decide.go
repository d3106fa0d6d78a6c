package rx

import (
	"math"

	"github.com/rjboer/gofhss/internal/dsp"
)

// costasLoopBW is the normalized loop bandwidth of the optional carrier loop.
const costasLoopBW = 0.01

// Decider maps soft symbols to symbol indices.
type Decider interface {
	Decide(soft []complex64) []int
}

// CarrierRecovery corrects residual carrier phase on soft symbols in place.
type CarrierRecovery interface {
	Track(soft []complex64)
	Reset()
}

// ConstellationDecider picks the nearest point of the receive constellation,
// which is the transmit constellation rotated by π/4 by the sync word
// rotation, and returns the transmit index of that point.
type ConstellationDecider struct {
	c *dsp.Constellation
}

// NewConstellationDecider returns a decider for M-PSK.
func NewConstellationDecider(order int) (*ConstellationDecider, error) {
	c, err := dsp.NewPSK(order, math.Pi/4)
	if err != nil {
		return nil, err
	}
	return &ConstellationDecider{c: c}, nil
}

// Constellation returns the receive point set.
func (d *ConstellationDecider) Constellation() *dsp.Constellation { return d.c }

// Decide implements Decider.
func (d *ConstellationDecider) Decide(soft []complex64) []int {
	out := make([]int, len(soft))
	for i, z := range soft {
		out[i] = d.c.Decide(z)
	}
	return out
}

// CostasRecovery is a CarrierRecovery backed by a decision-directed Costas
// loop on the receive constellation.
type CostasRecovery struct {
	loop *dsp.CostasLoop
}

// NewCostasRecovery returns a loop for M-PSK.
func NewCostasRecovery(order int) (*CostasRecovery, error) {
	c, err := dsp.NewPSK(order, math.Pi/4)
	if err != nil {
		return nil, err
	}
	return &CostasRecovery{loop: dsp.NewCostasLoop(c, costasLoopBW)}, nil
}

// Track implements CarrierRecovery.
func (r *CostasRecovery) Track(soft []complex64) { r.loop.Track(soft) }

// Reset implements CarrierRecovery.
func (r *CostasRecovery) Reset() { r.loop.Reset() }
