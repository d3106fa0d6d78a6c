package app

import (
	"time"

	"github.com/rjboer/gofhss/internal/logging"
	"github.com/rjboer/gofhss/internal/rx"
	"github.com/rjboer/gofhss/internal/ser"
	"github.com/rjboer/gofhss/internal/telemetry"
)

// Monitor turns receiver output into SER measurements, link state and
// telemetry samples.
type Monitor struct {
	meas     *ser.Measurement
	link     *LinkMonitor
	reporter telemetry.Reporter
	csv      *ser.CSVLog
	spectrum *telemetry.SpectrumMonitor
	logger   logging.Logger

	haveStats    bool
	lastHop      int64
	lastAccepted int64
	lastPeak     float64
}

// NewMonitor builds a monitor; reporter may be nil.
func NewMonitor(meas *ser.Measurement, link *LinkMonitor, reporter telemetry.Reporter, logger logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Monitor{meas: meas, link: link, reporter: reporter, logger: logger}
}

// SetCSVLog adds a per-frame CSV log.
func (m *Monitor) SetCSVLog(l *ser.CSVLog) { m.csv = l }

// SetSpectrum adds spectrum snapshots of the received stream.
func (m *Monitor) SetSpectrum(s *telemetry.SpectrumMonitor) { m.spectrum = s }

// Link returns the link state machine.
func (m *Monitor) Link() *LinkMonitor { return m.link }

// Measurement returns the SER measurement.
func (m *Monitor) Measurement() *ser.Measurement { return m.meas }

// Acquired records the peak of an accepted acquisition.
func (m *Monitor) Acquired(ev rx.AcquisitionEvent) { m.lastPeak = ev.Peak }

// Observe inspects a received block before it is processed.
func (m *Monitor) Observe(iq []complex64) {
	if m.spectrum != nil {
		m.spectrum.Observe(iq)
	}
}

// Tick accounts for the hops and acquisitions since the previous Tick.
func (m *Monitor) Tick(st rx.Stats) {
	if !m.haveStats {
		m.haveStats = true
		m.lastHop = st.Hop
		m.lastAccepted = st.Accepted
		m.link.Hops(0, st.Accepted)
		return
	}
	m.link.Hops(st.Hop-m.lastHop, st.Accepted-m.lastAccepted)
	m.lastHop = st.Hop
	m.lastAccepted = st.Accepted
}

// Frame measures one decided frame and reports it.
func (m *Monitor) Frame(f rx.RecoveredFrame) ser.Result {
	res := m.meas.Measure(f.Hop, f.Symbols)
	state := m.link.Frame(res.SER)
	st := m.meas.Statistics()
	if m.reporter != nil {
		m.reporter.Report(telemetry.Sample{
			Timestamp: time.Now(),
			Frame:     res.Frame,
			Hop:       res.Hop,
			Errors:    res.Errors,
			SER:       res.SER,
			RecentSER: st.Recent,
			TotalSER:  st.SER,
			Peak:      m.lastPeak,
			State:     state,
		})
	}
	if m.csv != nil {
		if err := m.csv.Write(res); err != nil {
			m.logger.Warn("csv log write failed", logging.F("err", err))
		}
	}
	return res
}
