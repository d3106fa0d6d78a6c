package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// fullScale is the magnitude of a full-scale complex64 sample. The radio
// boundary carries normalized samples in [-1, 1].
const fullScale = 1.0

// FFTShift returns the FFT output shifted so that DC is centered.
func FFTShift(data []complex128) []complex128 {
	n := len(data)
	if n == 0 {
		return []complex128{}
	}
	half := n / 2
	shifted := make([]complex128, 0, n)
	shifted = append(shifted, data[half:]...)
	return append(shifted, data[:half]...)
}

// FFTAndDBFS performs an FFT on the provided complex64 samples, applies a Hamming window,
// normalizes by the window sum, and converts the magnitude to dBFS.
func FFTAndDBFS(samples []complex64) ([]complex128, []float64) {
	if len(samples) == 0 {
		return []complex128{}, []float64{}
	}
	win := Hamming(len(samples))
	windowed := ApplyWindow(samples, win)
	fft := fourier.NewCmplxFFT(len(samples)).Coefficients(nil, windowed)
	return normalizeSpectrum(fft, WindowSum(win))
}

// normalizeSpectrum scales raw coefficients by the window sum, centers DC and
// returns the magnitudes in dBFS alongside the shifted coefficients.
func normalizeSpectrum(fft []complex128, sumWin float64) ([]complex128, []float64) {
	for i := range fft {
		fft[i] /= complex(sumWin, 0)
	}
	shifted := FFTShift(fft)
	dbfs := make([]float64, len(shifted))
	for i, v := range shifted {
		mag := cmplx.Abs(v)
		if mag == 0 {
			dbfs[i] = -math.Inf(1)
			continue
		}
		dbfs[i] = 20 * math.Log10(mag/fullScale)
	}
	return shifted, dbfs
}
