package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the immutable session configuration shared by the transmitter and
// the receiver. Changing any field means building new components from it.
type Config struct {
	HopRate             int     `yaml:"hop_rate"`
	ModulationOrder     int     `yaml:"modulation_order"`
	Seed                int64   `yaml:"seed"`
	InfoSeed            int64   `yaml:"info_seed"`
	FrameCycle          int     `yaml:"frame_cycle"`
	SampleRate          float64 `yaml:"sample_rate"`
	InterpolationFactor int     `yaml:"interpolation_factor"`
	TxGain              float64 `yaml:"tx_gain"`
	RxGain              float64 `yaml:"rx_gain"`
	BandwidthHz         float64 `yaml:"bandwidth_hz"`
	ChannelSpacingHz    float64 `yaml:"channel_spacing_hz"`
	CarrierOffsetHz     float64 `yaml:"carrier_offset_hz"`
	CorrThreshold       float64 `yaml:"corr_threshold"`
	CarrierLoop         bool    `yaml:"carrier_loop"`
	LossHops            int     `yaml:"loss_hops"`
	StartHop            int64   `yaml:"start_hop"`
	ClockStart          bool    `yaml:"clock_start"`
	Hops                int     `yaml:"hops"`
	SyncWordDir         string  `yaml:"sync_word_dir"`
	ReferenceDir        string  `yaml:"reference_dir"`

	Channel   ChannelConfig   `yaml:"channel"`
	Radio     RadioConfig     `yaml:"radio"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ChannelConfig shapes the simulated air interface used by the loopback radio.
type ChannelConfig struct {
	DelaySamples int     `yaml:"delay_samples"`
	NoiseStd     float64 `yaml:"noise_std"`
	Gain         float64 `yaml:"gain"`
	Depth        int     `yaml:"depth"`
}

// RadioConfig selects the sample-stream backend.
type RadioConfig struct {
	Backend string `yaml:"backend"` // loopback|file|tcp
	Path    string `yaml:"path"`
	Addr    string `yaml:"addr"`
	Format  string `yaml:"format"` // cf32|sc16
}

// LogConfig selects the logging level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig controls the SER readout surfaces.
type TelemetryConfig struct {
	WebAddr      string `yaml:"web_addr"`
	HistoryLimit int    `yaml:"history_limit"`
	Advertise    bool   `yaml:"advertise"`
	CSVPattern   string `yaml:"csv_pattern"`
}

// Default returns the configuration of the reference hop_rx/hop_tx flow graphs.
func Default() Config {
	return Config{
		HopRate:             20,
		ModulationOrder:     4,
		Seed:                42,
		InfoSeed:            12345,
		FrameCycle:          1,
		SampleRate:          2_457_600,
		InterpolationFactor: 256,
		TxGain:              30,
		RxGain:              30,
		BandwidthHz:         1e6,
		ChannelSpacingHz:    3e3,
		CarrierOffsetHz:     500e3,
		CorrThreshold:       0.9,
		LossHops:            5,
		SyncWordDir:         "head_sample",
		ReferenceDir:        "frame_idxs",
		Channel:             ChannelConfig{Gain: 1, Depth: 4},
		Radio:               RadioConfig{Backend: "loopback", Format: "cf32"},
		Log:                 LogConfig{Level: "info", Format: "text"},
		Telemetry:           TelemetryConfig{HistoryLimit: 500},
	}
}

// Validate checks every field that the core depends on. It is called once at
// startup; the first problem found is returned.
func (c Config) Validate() error {
	switch {
	case c.HopRate <= 0:
		return Invalid("hop_rate", c.HopRate, "must be positive")
	case c.ModulationOrder != 2 && c.ModulationOrder != 4 && c.ModulationOrder != 8:
		return Invalid("modulation_order", c.ModulationOrder, "must be 2, 4 or 8")
	case c.Seed < 0:
		return Invalid("seed", c.Seed, "must not be negative")
	case c.InfoSeed < 0:
		return Invalid("info_seed", c.InfoSeed, "must not be negative")
	case c.FrameCycle < 1:
		return Invalid("frame_cycle", c.FrameCycle, "must be at least 1")
	case c.SampleRate <= 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0):
		return Invalid("sample_rate", c.SampleRate, "must be a positive finite rate")
	case c.InterpolationFactor <= 0:
		return Invalid("interpolation_factor", c.InterpolationFactor, "must be positive")
	case c.BandwidthHz <= 0:
		return Invalid("bandwidth_hz", c.BandwidthHz, "must be positive")
	case c.ChannelSpacingHz <= 0:
		return Invalid("channel_spacing_hz", c.ChannelSpacingHz, "must be positive")
	case c.CorrThreshold <= 0 || c.CorrThreshold > 1:
		return Invalid("corr_threshold", c.CorrThreshold, "must be in (0,1]")
	case c.LossHops < 0:
		return Invalid("loss_hops", c.LossHops, "must not be negative")
	case c.StartHop < 0:
		return Invalid("start_hop", c.StartHop, "must not be negative")
	case c.Hops < 0:
		return Invalid("hops", c.Hops, "must not be negative")
	case c.Channel.DelaySamples < 0:
		return Invalid("channel.delay_samples", c.Channel.DelaySamples, "must not be negative")
	case c.Channel.NoiseStd < 0:
		return Invalid("channel.noise_std", c.Channel.NoiseStd, "must not be negative")
	}
	switch c.Radio.Backend {
	case "loopback", "file", "tcp":
	default:
		return Invalid("radio.backend", c.Radio.Backend, "must be loopback, file or tcp")
	}
	switch c.Radio.Format {
	case "", "cf32", "sc16":
	default:
		return Invalid("radio.format", c.Radio.Format, "must be cf32 or sc16")
	}
	return nil
}

// SyncWordPath returns the conventional sync word file for the configured
// rate and modulation order.
func (c Config) SyncWordPath() string {
	return filepath.Join(c.SyncWordDir, fmt.Sprintf("sync_word_hop%d_psk%d", c.HopRate, c.ModulationOrder))
}

// ReferencePath returns the conventional reference symbol-index file.
func (c Config) ReferencePath() string {
	return filepath.Join(c.ReferenceDir, fmt.Sprintf("idxs_hop%d_psk%d", c.HopRate, c.ModulationOrder))
}

// Load reads a YAML configuration file layered over Default.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns Default when the file is missing.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes the configuration as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
