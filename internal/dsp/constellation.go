package dsp

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Constellation is an M-PSK point set e^{j(2πk/M + rotation)} indexed by k.
type Constellation struct {
	order    int
	rotation float64
	points   []complex64
}

// NewPSK returns the M-PSK constellation rotated by rotation radians. order
// must be a power of two of at least 2.
func NewPSK(order int, rotation float64) (*Constellation, error) {
	if order < 2 || order&(order-1) != 0 {
		return nil, fmt.Errorf("psk order %d is not a power of two >= 2", order)
	}
	pts := make([]complex64, order)
	for k := range pts {
		s, c := math.Sincos(2*math.Pi*float64(k)/float64(order) + rotation)
		pts[k] = complex(float32(c), float32(s))
	}
	return &Constellation{order: order, rotation: rotation, points: pts}, nil
}

// Order returns M.
func (c *Constellation) Order() int { return c.order }

// BitsPerSymbol returns log2(M).
func (c *Constellation) BitsPerSymbol() int {
	bits := 0
	for m := c.order; m > 1; m >>= 1 {
		bits++
	}
	return bits
}

// Point returns the complex value of index k. k must be in [0, M).
func (c *Constellation) Point(k int) complex64 { return c.points[k] }

// Decide returns the index of the point nearest to z in angle. Zero maps to
// index 0.
func (c *Constellation) Decide(z complex64) int {
	if z == 0 {
		return 0
	}
	step := 2 * math.Pi / float64(c.order)
	a := cmplx.Phase(complex128(z)) - c.rotation
	k := int(math.Round(a/step)) % c.order
	if k < 0 {
		k += c.order
	}
	return k
}

// PhaseError returns the angle between z and its decided point, in (-π/M, π/M].
func (c *Constellation) PhaseError(z complex64) float64 {
	if z == 0 {
		return 0
	}
	p := c.points[c.Decide(z)]
	return cmplx.Phase(complex128(z) * cmplx.Conj(complex128(p)))
}
