package dsp

import "math"

// NCO is a numerically controlled oscillator that mixes a complex stream by
// e^{j2πf·n/fs}. The sample counter n is explicit so callers control where the
// phase reference sits; the phase is recomputed from n on every sample and
// never accumulates rounding error across a hop.
type NCO struct {
	freq       float64
	sampleRate float64
	n          int64
}

// NewNCO returns an oscillator at freq Hz for the given sample rate with its
// phase reference at sample zero.
func NewNCO(freq, sampleRate float64) *NCO {
	return &NCO{freq: freq, sampleRate: sampleRate}
}

// SetFrequency retunes the oscillator without moving the phase reference.
func (o *NCO) SetFrequency(freq float64) { o.freq = freq }

// Frequency returns the current tuning in Hz.
func (o *NCO) Frequency() float64 { return o.freq }

// Reset puts the phase reference on the next sample.
func (o *NCO) Reset() { o.n = 0 }

// Seek sets the sample counter; the next mixed sample uses phase 2πf·n/fs.
func (o *NCO) Seek(n int64) { o.n = n }

// Position returns the sample counter of the next mixed sample.
func (o *NCO) Position() int64 { return o.n }

// Mix writes src·e^{j2πf·n/fs} into dst and advances the counter. dst may
// alias src. It returns dst[:len(src)].
func (o *NCO) Mix(dst, src []complex64) []complex64 {
	if cap(dst) < len(src) {
		dst = make([]complex64, len(src))
	}
	dst = dst[:len(src)]
	if o.sampleRate == 0 {
		copy(dst, src)
		o.n += int64(len(src))
		return dst
	}
	step := o.freq / o.sampleRate
	for i, v := range src {
		cycles := step * float64(o.n+int64(i))
		cycles -= math.Floor(cycles)
		s, c := math.Sincos(2 * math.Pi * cycles)
		dst[i] = v * complex(float32(c), float32(s))
	}
	o.n += int64(len(src))
	return dst
}
