package dsp

import "math"

// Sinc is the normalized sinc sin(πx)/(πx).
func Sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}

// DesignLowpass returns a Hamming-windowed sinc lowpass for a rate change of
// factor with sidelobes zero crossings on each side of the center
// (2·sidelobes·factor+1 taps). The cutoff is half the low rate. The taps
// are scaled to the requested DC gain.
func DesignLowpass(factor, sidelobes int, gain float64) []float64 {
	if factor < 1 {
		factor = 1
	}
	if sidelobes < 1 {
		sidelobes = 1
	}
	half := sidelobes * factor
	n := 2*half + 1
	win := Hamming(n)
	taps := make([]float64, n)
	var sum float64
	for i := range taps {
		taps[i] = Sinc(float64(i-half)/float64(factor)) * win[i]
		sum += taps[i]
	}
	if sum != 0 {
		for i := range taps {
			taps[i] *= gain / sum
		}
	}
	return taps
}

// Interpolator upsamples one vector at a time by an integer factor with a
// zero-phase windowed-sinc filter. Output sample factor·n carries input
// sample n exactly; no state survives between vectors.
type Interpolator struct {
	factor int
	taps   []float32
	half   int
}

// NewInterpolator builds an interpolator for factor with the given number of
// sinc zero crossings per side.
func NewInterpolator(factor, sidelobes int) *Interpolator {
	if factor < 1 {
		factor = 1
	}
	half := sidelobes * factor
	win := Hamming(2*half + 1)
	taps := make([]float32, len(win))
	for i := range taps {
		taps[i] = float32(Sinc(float64(i-half)/float64(factor)) * win[i])
	}
	return &Interpolator{factor: factor, taps: taps, half: half}
}

// Factor returns the upsampling ratio.
func (p *Interpolator) Factor() int { return p.factor }

// Interpolate returns len(in)·factor samples. Samples beyond either end of in
// are treated as zero.
func (p *Interpolator) Interpolate(in []complex64) []complex64 {
	out := make([]complex64, len(in)*p.factor)
	if p.factor == 1 {
		copy(out, in)
		return out
	}
	for n, v := range in {
		if v == 0 {
			continue
		}
		center := n * p.factor
		lo := center - p.half
		k0 := 0
		if lo < 0 {
			k0 = -lo
		}
		k1 := len(p.taps)
		if hi := center + p.half + 1; hi > len(out) {
			k1 -= hi - len(out)
		}
		re, im := real(v), imag(v)
		for k := k0; k < k1; k++ {
			h := p.taps[k]
			out[lo+k] += complex(re*h, im*h)
		}
	}
	return out
}

// Decimator is a streaming zero-phase FIR filter with integer decimation.
// Output m is centered on input m·factor, so it lags the input by the
// filter half length. Samples before the first input are zero.
type Decimator struct {
	factor int
	taps   []float32
	half   int

	buf      []complex64
	bufStart int64
	next     int64
}

// NewDecimator wraps a symmetric odd-length tap set. factor 1 makes it a
// plain zero-phase filter.
func NewDecimator(taps []float64, factor int) *Decimator {
	if factor < 1 {
		factor = 1
	}
	if len(taps) == 0 {
		taps = []float64{1}
	}
	t := make([]float32, len(taps))
	for i, v := range taps {
		t[i] = float32(v)
	}
	return &Decimator{factor: factor, taps: t, half: len(taps) / 2}
}

// Lookahead is the number of input samples past m·factor needed to emit m.
func (d *Decimator) Lookahead() int { return d.half }

// Next is the index of the next output sample.
func (d *Decimator) Next() int64 { return d.next }

// Reset drops all buffered input and restarts output numbering at zero.
func (d *Decimator) Reset() {
	d.buf = d.buf[:0]
	d.bufStart = 0
	d.next = 0
}

// Process consumes x and returns every output sample that is now complete.
func (d *Decimator) Process(x []complex64) []complex64 {
	d.buf = append(d.buf, x...)
	end := d.bufStart + int64(len(d.buf))
	var out []complex64
	for {
		center := d.next * int64(d.factor)
		if center+int64(d.half) >= end {
			break
		}
		lo := center - int64(d.half) - d.bufStart
		k0 := 0
		if lo < 0 {
			k0 = int(-lo)
		}
		var re, im float32
		for k := k0; k < len(d.taps); k++ {
			v := d.buf[lo+int64(k)]
			h := d.taps[k]
			re += real(v) * h
			im += imag(v) * h
		}
		out = append(out, complex(re, im))
		d.next++
	}

	keep := d.next*int64(d.factor) - int64(d.half)
	if drop := keep - d.bufStart; drop > 0 {
		if drop > int64(len(d.buf)) {
			drop = int64(len(d.buf))
		}
		n := copy(d.buf, d.buf[drop:])
		d.buf = d.buf[:n]
		d.bufStart += drop
	}
	return out
}
