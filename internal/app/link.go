package app

import (
	"github.com/rjboer/gofhss/internal/logging"
	"github.com/rjboer/gofhss/internal/telemetry"
)

const (
	lockSER      = 0.05
	dropSER      = 0.25
	stableNeeded = 3
	dropNeeded   = 2
)

// LinkMonitor tracks the link state from acquisitions, elapsed hops and frame
// error rates.
//
//	searching -> tracking   on the first acquisition
//	tracking  -> locked     after stableNeeded frames below lockSER
//	locked    -> tracking   after dropNeeded frames above dropSER
//	any       -> degraded   after lossHops hops without an acquisition,
//	                        counted from the start for a link never acquired
//	degraded  -> tracking   on the next acquisition
//
// A lossHops of zero disables the degraded state.
type LinkMonitor struct {
	lossHops int64
	logger   logging.Logger

	state     telemetry.LinkState
	missed    int64
	stableCnt int
	dropCnt   int
	losses    int64
}

// NewLinkMonitor starts in the searching state.
func NewLinkMonitor(lossHops int, logger logging.Logger) *LinkMonitor {
	if logger == nil {
		logger = logging.Default()
	}
	return &LinkMonitor{
		lossHops: int64(lossHops),
		logger:   logger.With(logging.F("subsystem", "link")),
		state:    telemetry.StateSearching,
	}
}

// State returns the current state.
func (m *LinkMonitor) State() telemetry.LinkState { return m.state }

// Losses counts transitions into the degraded state.
func (m *LinkMonitor) Losses() int64 { return m.losses }

// Hops accounts for elapsed hops, acquired of which had an accepted
// acquisition.
func (m *LinkMonitor) Hops(elapsed, acquired int64) {
	if acquired > 0 {
		m.missed = 0
		switch m.state {
		case telemetry.StateSearching:
			m.set(telemetry.StateTracking)
			m.logger.Info("link acquired")
		case telemetry.StateDegraded:
			m.set(telemetry.StateTracking)
			m.logger.Info("link recovered")
		}
		return
	}
	if elapsed <= 0 || m.state == telemetry.StateDegraded {
		return
	}
	m.missed += elapsed
	if m.lossHops > 0 && m.missed >= m.lossHops {
		m.losses++
		msg := "acquisition lost"
		if m.state == telemetry.StateSearching {
			msg = "no acquisition"
		}
		m.set(telemetry.StateDegraded)
		m.logger.Warn(msg, logging.F("missed_hops", m.missed))
	}
}

// Frame feeds the error rate of one measured frame.
func (m *LinkMonitor) Frame(ser float64) telemetry.LinkState {
	switch m.state {
	case telemetry.StateLocked:
		if ser > dropSER {
			m.dropCnt++
			if m.dropCnt >= dropNeeded {
				m.set(telemetry.StateTracking)
				m.logger.Info("link lock dropped", logging.F("ser", ser))
			}
		} else {
			m.dropCnt = 0
		}
	case telemetry.StateTracking:
		if ser <= lockSER {
			m.stableCnt++
			if m.stableCnt >= stableNeeded {
				m.set(telemetry.StateLocked)
				m.logger.Info("link locked")
			}
		} else {
			m.stableCnt = 0
		}
	}
	return m.state
}

func (m *LinkMonitor) set(s telemetry.LinkState) {
	m.state = s
	m.stableCnt = 0
	m.dropCnt = 0
}
