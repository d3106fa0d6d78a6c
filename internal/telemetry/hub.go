package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/rjboer/gofhss/internal/logging"
)

// Config represents the runtime configuration exposed by the telemetry hub.
// SampleRateHz and BufferSize describe the spectrum snapshot; HistoryLimit
// bounds the stored link samples. Access is guarded by the hub's RWMutex.
type Config struct {
	SampleRateHz int `json:"sampleRateHz"`
	BufferSize   int `json:"bufferSize"`
	HistoryLimit int `json:"historyLimit"`
}

const (
	minSampleRateHz = 1_000
	maxSampleRateHz = 61_440_000
	minBufferSize   = 64
	maxBufferSize   = 1 << 20
	minHistoryLimit = 1
	maxHistoryLimit = 10_000
)

func defaultConfig() Config {
	return Config{
		SampleRateHz: 2_457_600,
		BufferSize:   4096,
		HistoryLimit: 500,
	}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.SampleRateHz == 0 || base.BufferSize == 0 || base.HistoryLimit == 0 {
		base = defaultConfig()
	}

	if cfg.SampleRateHz == 0 {
		cfg.SampleRateHz = base.SampleRateHz
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = base.BufferSize
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}

	if cfg.SampleRateHz < minSampleRateHz || cfg.SampleRateHz > maxSampleRateHz {
		return Config{}, fmt.Errorf("sample rate must be between %d and %d Hz", minSampleRateHz, maxSampleRateHz)
	}
	if cfg.BufferSize < minBufferSize || cfg.BufferSize > maxBufferSize {
		return Config{}, fmt.Errorf("buffer size must be between %d and %d", minBufferSize, maxBufferSize)
	}
	if cfg.BufferSize&(cfg.BufferSize-1) != 0 {
		return Config{}, errors.New("buffer size must be a power of two")
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}

	return cfg, nil
}

// LinkState is the receiver's view of the link.
type LinkState string

const (
	StateSearching LinkState = "searching"
	StateTracking  LinkState = "tracking"
	StateLocked    LinkState = "locked"
	StateDegraded  LinkState = "degraded"
)

// Sample captures one measured frame for visualization.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Frame     int64     `json:"frame"`
	Hop       int64     `json:"hop"`
	Errors    int       `json:"errors"`
	SER       float64   `json:"ser"`
	RecentSER float64   `json:"recentSer"`
	TotalSER  float64   `json:"totalSer"`
	Peak      float64   `json:"peak"`
	State     LinkState `json:"state"`
}

// SpectrumSnapshot is the latest power spectrum of the received stream.
type SpectrumSnapshot struct {
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	SampleRateHz float64   `json:"sampleRateHz"`
	Bins         []float64 `json:"bins"`
	SNRdB        float64   `json:"snrDb"`
}

// ProcessStats describes the running process.
type ProcessStats struct {
	Uptime       float64 `json:"uptimeSeconds"`
	NumGoroutine int     `json:"numGoroutine"`
	HeapAlloc    uint64  `json:"heapAlloc"`
}

// Diagnostics bundles process metrics, the spectrum and the last sample.
type Diagnostics struct {
	Process  ProcessStats     `json:"process"`
	Spectrum SpectrumSnapshot `json:"spectrum"`
	Last     *Sample          `json:"last,omitempty"`
}

// HealthStatus is "ok" while the link is locked or tracking, or when only a
// spectrum has been seen so far; "degraded" otherwise.
type HealthStatus struct {
	Status  string       `json:"status"`
	State   LinkState    `json:"state,omitempty"`
	Process ProcessStats `json:"process"`
}

// Hub collects history and fan-outs telemetry updates to subscribers.
type Hub struct {
	mu           sync.RWMutex
	history      []Sample
	historyLimit int
	subscribers  map[chan Sample]struct{}
	config       Config
	spectrum     SpectrumSnapshot
	started      time.Time
	logger       logging.Logger
}

// NewHub builds a telemetry hub with the provided history limit.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := defaultConfig()
	if historyLimit > 0 {
		cfg.HistoryLimit = historyLimit
	}
	cfg, err := validateConfig(cfg, defaultConfig())
	if err != nil {
		cfg = defaultConfig()
	}
	return &Hub{
		historyLimit: cfg.HistoryLimit,
		subscribers:  make(map[chan Sample]struct{}),
		config:       cfg,
		started:      time.Now(),
		logger:       logger.With(logging.F("subsystem", "telemetry")),
	}
}

// Report implements Reporter and records a new telemetry sample.
func (h *Hub) Report(sample Sample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	h.mu.Lock()
	h.history = append(h.history, sample)
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
	h.mu.Unlock()
}

// UpdateSpectrumSnapshot replaces the stored spectrum.
func (h *Hub) UpdateSpectrumSnapshot(bins []float64, source string) {
	h.UpdateSpectrum(SpectrumSnapshot{Bins: bins, Source: source})
}

// UpdateSpectrum replaces the stored spectrum, copying the bins.
func (h *Hub) UpdateSpectrum(s SpectrumSnapshot) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	s.Bins = append([]float64(nil), s.Bins...)
	h.mu.Lock()
	h.spectrum = s
	h.mu.Unlock()
}

// Spectrum returns the stored spectrum.
func (h *Hub) Spectrum() SpectrumSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.spectrum
}

// History returns a copy of stored telemetry samples.
func (h *Hub) History() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.history))
	copy(out, h.history)
	return out
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Sample, func()) {
	ch := make(chan Sample, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// MultiReporter fans out telemetry to multiple destinations.
type MultiReporter []Reporter

// Report forwards telemetry to each configured reporter.
func (m MultiReporter) Report(sample Sample) {
	for _, r := range m {
		if r != nil {
			r.Report(sample)
		}
	}
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	h.historyLimit = cfg.HistoryLimit
	if len(h.history) > h.historyLimit {
		h.history = h.history[len(h.history)-h.historyLimit:]
	}
}

func (h *Hub) processStats() ProcessStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ProcessStats{
		Uptime:       time.Since(h.started).Seconds(),
		NumGoroutine: runtime.NumGoroutine(),
		HeapAlloc:    ms.HeapAlloc,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.History())
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	current := h.config
	h.mu.RUnlock()

	cfg, err := validateConfig(incoming, current)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.applyConfig(cfg)
	h.mu.Unlock()
	h.logger.Info("telemetry config updated", logging.F("history_limit", cfg.HistoryLimit), logging.F("buffer_size", cfg.BufferSize))

	writeJSON(w, cfg)
}

func (h *Hub) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	d := Diagnostics{Process: h.processStats(), Spectrum: h.Spectrum()}
	h.mu.RLock()
	if n := len(h.history); n > 0 {
		last := h.history[n-1]
		d.Last = &last
	}
	h.mu.RUnlock()
	writeJSON(w, d)
}

func (h *Hub) handleSpectrumSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.Spectrum())
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := HealthStatus{Status: "degraded", Process: h.processStats()}
	h.mu.RLock()
	if n := len(h.history); n > 0 {
		status.State = h.history[n-1].State
		if status.State == StateLocked || status.State == StateTracking {
			status.Status = "ok"
		}
	} else if h.spectrum.Source != "" {
		status.Status = "ok"
	}
	h.mu.RUnlock()
	writeJSON(w, status)
}

func writeEvent(w http.ResponseWriter, sample Sample) {
	payload, _ := json.Marshal(sample)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, sample := range h.History() {
		writeEvent(w, sample)
	}
	flusher.Flush()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, sample)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
