package dsp

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// maxCorrPlans bounds the number of FFT sizes an XCorr keeps prepared.
const maxCorrPlans = 8

// XCorr computes the normalized sliding cross-correlation of a stream segment
// against a fixed template using FFTs. Template spectra are cached per FFT
// size, so repeated calls with equal segment lengths do no redundant work.
type XCorr struct {
	mu       sync.Mutex
	template []complex128
	norm     float64
	plans    map[int]*corrPlan
}

type corrPlan struct {
	fft   *fourier.CmplxFFT
	tspec []complex128
}

// NewXCorr prepares a correlator for template.
func NewXCorr(template []complex64) *XCorr {
	t := make([]complex128, len(template))
	var energy float64
	for i, v := range template {
		t[i] = complex128(v)
		energy += real(t[i])*real(t[i]) + imag(t[i])*imag(t[i])
	}
	return &XCorr{
		template: t,
		norm:     math.Sqrt(energy),
		plans:    make(map[int]*corrPlan),
	}
}

// Len returns the template length.
func (c *XCorr) Len() int { return len(c.template) }

func (c *XCorr) plan(n int) *corrPlan {
	if p, ok := c.plans[n]; ok {
		return p
	}
	if len(c.plans) >= maxCorrPlans {
		clear(c.plans)
	}
	fft := fourier.NewCmplxFFT(n)
	padded := make([]complex128, n)
	copy(padded, c.template)
	p := &corrPlan{fft: fft, tspec: fft.Coefficients(nil, padded)}
	c.plans[n] = p
	return p
}

// Normalized correlates x against the template at every lag l where the
// template fits entirely, 0 <= l <= len(x)-Len(). corr[l] is
// Σ x[l+i]·conj(t[i]) and mag[l] is |corr[l]| / (‖x[l:l+Len()]‖·‖t‖), which
// lies in [0, 1]. A segment shorter than the template yields no lags.
func (c *XCorr) Normalized(x []complex64) (corr []complex128, mag []float64) {
	m := len(c.template)
	n := len(x)
	if m == 0 || n < m {
		return nil, nil
	}

	xs := make([]complex128, n)
	prefix := make([]float64, n+1)
	for i, v := range x {
		xs[i] = complex128(v)
		prefix[i+1] = prefix[i] + real(xs[i])*real(xs[i]) + imag(xs[i])*imag(xs[i])
	}

	c.mu.Lock()
	p := c.plan(n)
	spec := p.fft.Coefficients(nil, xs)
	for k := range spec {
		spec[k] *= cmplx.Conj(p.tspec[k])
	}
	seq := p.fft.Sequence(nil, spec)
	c.mu.Unlock()

	lags := n - m + 1
	corr = make([]complex128, lags)
	mag = make([]float64, lags)
	scale := complex(1/float64(n), 0)
	for l := 0; l < lags; l++ {
		corr[l] = seq[l] * scale
		energy := prefix[l+m] - prefix[l]
		if energy <= 0 || c.norm == 0 {
			continue
		}
		v := cmplx.Abs(corr[l]) / (math.Sqrt(energy) * c.norm)
		if v > 1 {
			v = 1
		}
		mag[l] = v
	}
	return corr, mag
}

// ParabolicPeak fits a parabola through three equally spaced samples around a
// maximum at the center one and returns the vertex offset in (-0.5, 0.5).
func ParabolicPeak(left, center, right float64) float64 {
	den := left - 2*center + right
	if den == 0 {
		return 0
	}
	d := 0.5 * (left - right) / den
	if d > 0.5 {
		return 0.5
	}
	if d < -0.5 {
		return -0.5
	}
	return d
}
