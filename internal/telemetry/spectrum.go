package telemetry

import (
	"sync"
	"time"

	"github.com/rjboer/gofhss/internal/dsp"
)

// SpectrumMonitor feeds the hub with dBFS snapshots of the received stream.
// The SNR is the strongest bin inside the hopping band over the mean level
// outside it.
type SpectrumMonitor struct {
	hub      *Hub
	source   string
	rate     float64
	centerHz float64
	widthHz  float64
	every    time.Duration

	mu   sync.Mutex
	spec *dsp.Spectrum
	last time.Time
	now  func() time.Time
}

// NewSpectrumMonitor publishes at most one snapshot per interval.
func NewSpectrumMonitor(hub *Hub, source string, sampleRate, centerHz, widthHz float64, interval time.Duration) *SpectrumMonitor {
	return &SpectrumMonitor{
		hub:      hub,
		source:   source,
		rate:     sampleRate,
		centerHz: centerHz,
		widthHz:  widthHz,
		every:    interval,
		spec:     dsp.NewSpectrum(hub.ConfigSnapshot().BufferSize),
		now:      time.Now,
	}
}

// Observe analyses the tail of iq when the interval has elapsed. It reports
// whether a snapshot was published.
func (m *SpectrumMonitor) Observe(iq []complex64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.every {
		return false
	}
	size := m.hub.ConfigSnapshot().BufferSize
	if len(iq) < size {
		return false
	}
	if m.spec.Size() != size {
		m.spec.Resize(size)
	}
	_, db := m.spec.FFTAndDBFS(iq[len(iq)-size:])
	start, end := dsp.BinRange(size, m.rate, m.centerHz, m.widthHz)
	m.hub.UpdateSpectrum(SpectrumSnapshot{
		Timestamp:    now,
		Source:       m.source,
		SampleRateHz: m.rate,
		Bins:         db,
		SNRdB:        dsp.BandSNR(db, start, end),
	})
	m.last = now
	return true
}
