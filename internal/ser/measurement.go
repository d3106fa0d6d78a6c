// Package ser measures the symbol error rate of received frames against the
// reference symbol indices written by the generator.
package ser

import (
	"errors"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/rjboer/gofhss/internal/frame"
	"github.com/rjboer/gofhss/internal/logging"
)

const (
	// HistorySize is the number of recent frames in the running average.
	HistorySize = 30
	// SummaryInterval is the number of frames between summary log lines.
	SummaryInterval = 30
)

// ErrNoReference is returned when the reference holds no frames.
var ErrNoReference = errors.New("ser: empty reference")

// Result is the comparison of one received frame.
type Result struct {
	Frame   int64   `json:"frame"`
	Hop     int64   `json:"hop"`
	Symbols int     `json:"symbols"`
	Errors  int     `json:"errors"`
	SER     float64 `json:"ser"`
}

// Statistics is a snapshot of the accumulated counters.
type Statistics struct {
	Frames  int64   `json:"frames"`
	Symbols int64   `json:"symbols"`
	Errors  int64   `json:"errors"`
	SER     float64 `json:"ser"`
	Recent  float64 `json:"recent"`
	// RecentFrames is the number of frames behind Recent.
	RecentFrames int `json:"recentFrames"`
}

// Measurement compares frames positionally against a reference: the i-th
// measured frame is checked against reference frame i modulo the number of
// reference frames. Counters only grow until Reset.
type Measurement struct {
	mu     sync.Mutex
	ref    frame.Reference
	logger logging.Logger

	frames  int64
	symbols int64
	errors  int64
	history []float64
}

// NewMeasurement returns a measurement against ref.
func NewMeasurement(ref frame.Reference, logger logging.Logger) (*Measurement, error) {
	if ref.Frames() == 0 {
		return nil, ErrNoReference
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Measurement{
		ref:     ref,
		logger:  logger.With(logging.F("subsystem", "ser")),
		history: make([]float64, 0, HistorySize),
	}, nil
}

// Measure compares the decided symbols of the next frame. Reference symbols
// missing from a short frame count as errors; extra symbols are ignored.
func (m *Measurement) Measure(hop int64, symbols []int) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := m.ref.Frame(m.frames)
	res := Result{Frame: m.frames, Hop: hop, Symbols: len(want)}
	for i, v := range want {
		if i >= len(symbols) || symbols[i] != int(v) {
			res.Errors++
		}
	}
	if res.Symbols > 0 {
		res.SER = float64(res.Errors) / float64(res.Symbols)
	}

	m.frames++
	m.symbols += int64(res.Symbols)
	m.errors += int64(res.Errors)
	if len(m.history) == HistorySize {
		copy(m.history, m.history[1:])
		m.history = m.history[:HistorySize-1]
	}
	m.history = append(m.history, res.SER)

	if m.frames%SummaryInterval == 0 {
		m.logger.Info("symbol error rate",
			logging.F("frames", m.frames),
			logging.F("recent_frames", len(m.history)),
			logging.F("recent_ser", m.recent()),
			logging.F("ser", m.ser()))
	}
	return res
}

// Statistics returns the counters and both error rates.
func (m *Measurement) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Statistics{
		Frames:       m.frames,
		Symbols:      m.symbols,
		Errors:       m.errors,
		SER:          m.ser(),
		Recent:       m.recent(),
		RecentFrames: len(m.history),
	}
}

// SER is errors over symbols since the last Reset, 0 before any frame.
func (m *Measurement) SER() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ser()
}

// Reset clears the counters and the history. The next frame is compared
// against reference frame 0.
func (m *Measurement) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames, m.symbols, m.errors = 0, 0, 0
	m.history = m.history[:0]
}

func (m *Measurement) ser() float64 {
	if m.symbols == 0 {
		return 0
	}
	return float64(m.errors) / float64(m.symbols)
}

func (m *Measurement) recent() float64 {
	if len(m.history) == 0 {
		return 0
	}
	return floats.Sum(m.history) / float64(len(m.history))
}
