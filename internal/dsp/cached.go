package dsp

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum computes windowed dBFS spectra of fixed-size snapshots, reusing
// one Hamming window and FFT instance across calls.
type Spectrum struct {
	mu        sync.RWMutex
	window    []float64
	windowSum float64
	size      int
	fft       *fourier.CmplxFFT
}

// NewSpectrum prepares a spectrum analyzer for size-sample snapshots.
func NewSpectrum(size int) *Spectrum {
	s := &Spectrum{}
	s.Resize(size)
	return s
}

// FFTAndDBFS returns the DC-centered coefficients and dBFS magnitudes of
// samples. Snapshots of another size fall back to FFTAndDBFS.
func (s *Spectrum) FFTAndDBFS(samples []complex64) ([]complex128, []float64) {
	if len(samples) == 0 {
		return []complex128{}, []float64{}
	}
	s.mu.RLock()
	size := s.size
	s.mu.RUnlock()
	if len(samples) != size {
		return FFTAndDBFS(samples)
	}

	s.mu.Lock()
	windowed := ApplyWindow(samples, s.window)
	fft := s.fft.Coefficients(nil, windowed)
	sum := s.windowSum
	s.mu.Unlock()
	return normalizeSpectrum(fft, sum)
}

// Resize rebuilds the cached window and FFT for a new snapshot size.
func (s *Spectrum) Resize(size int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
	s.window = Hamming(size)
	s.windowSum = WindowSum(s.window)
	if size > 0 {
		s.fft = fourier.NewCmplxFFT(size)
	} else {
		s.fft = nil
	}
}

// Size returns the snapshot size the cache is prepared for.
func (s *Spectrum) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// BinRange returns the DC-centered bin interval [start, end) covering
// centerHz ± widthHz/2 in an n-bin spectrum at sampleRate.
func BinRange(n int, sampleRate, centerHz, widthHz float64) (int, int) {
	if n <= 0 || sampleRate <= 0 {
		return 0, 0
	}
	toBin := func(f float64) int {
		return int(math.Floor(float64(n) * (f + sampleRate/2) / sampleRate))
	}
	return clampBins(n, toBin(centerHz-widthHz/2), toBin(centerHz+widthHz/2)+1)
}

// clampBins clamps [start,end) to [0,n).
// If the resulting interval is empty, it returns (0,0).
func clampBins(n, start, end int) (int, int) {
	if n <= 0 {
		return 0, 0
	}
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > n {
		end = n
	}
	if start >= end {
		return 0, 0
	}
	return start, end
}

// PeakInBand returns the maximum value of db in [start,end) and its bin.
// ok is false if the band is empty.
func PeakInBand(db []float64, start, end int) (peak float64, bin int, ok bool) {
	s, e := clampBins(len(db), start, end)
	if s == e {
		return 0, 0, false
	}
	peak = math.Inf(-1)
	for i := s; i < e; i++ {
		if db[i] > peak {
			peak = db[i]
			bin = i
		}
	}
	if math.IsInf(peak, -1) {
		return 0, bin, false
	}
	return peak, bin, true
}

// NoiseFloor averages db outside [start,end), ignoring empty bins.
func NoiseFloor(db []float64, start, end int) (float64, bool) {
	s, e := clampBins(len(db), start, end)
	var sum float64
	var count int
	for i, v := range db {
		if i >= s && i < e {
			continue
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// BandSNR is the peak inside [start,end) over the mean level outside it, in dB.
func BandSNR(db []float64, start, end int) float64 {
	peak, _, ok := PeakInBand(db, start, end)
	if !ok {
		return 0
	}
	noise, ok := NoiseFloor(db, start, end)
	if !ok {
		return 0
	}
	snr := peak - noise
	if math.IsNaN(snr) || math.IsInf(snr, 0) {
		return 0
	}
	return snr
}
