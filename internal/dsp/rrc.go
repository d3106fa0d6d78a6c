package dsp

import "math"

// RootRaisedCosine designs a root-raised-cosine pulse with sps samples per
// symbol spanning span symbols (span·sps+1 taps, centered). The taps are
// scaled to unit energy so that the pulse convolved with itself peaks at 1.
func RootRaisedCosine(sps int, rolloff float64, span int) []float64 {
	if sps <= 0 || span <= 0 {
		return []float64{1}
	}
	n := span*sps + 1
	half := n / 2
	taps := make([]float64, n)
	b := rolloff
	for i := range taps {
		t := float64(i-half) / float64(sps)
		switch {
		case t == 0:
			taps[i] = 1 - b + 4*b/math.Pi
		case b > 0 && math.Abs(math.Abs(4*b*t)-1) < 1e-9:
			taps[i] = b / math.Sqrt2 * ((1+2/math.Pi)*math.Sin(math.Pi/(4*b)) +
				(1-2/math.Pi)*math.Cos(math.Pi/(4*b)))
		default:
			num := math.Sin(math.Pi*t*(1-b)) + 4*b*t*math.Cos(math.Pi*t*(1+b))
			den := math.Pi * t * (1 - (4*b*t)*(4*b*t))
			taps[i] = num / den
		}
	}
	var energy float64
	for _, v := range taps {
		energy += v * v
	}
	if energy > 0 {
		scale := 1 / math.Sqrt(energy)
		for i := range taps {
			taps[i] *= scale
		}
	}
	return taps
}
