// Package app wires configuration, the transmit and receive chains, the radio
// boundary and telemetry into runnable transmitter, receiver and simulator
// sessions.
package app

import (
	"fmt"
	"time"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/frame"
	"github.com/rjboer/gofhss/internal/hop"
	"github.com/rjboer/gofhss/internal/logging"
	"github.com/rjboer/gofhss/internal/rx"
	"github.com/rjboer/gofhss/internal/sdr"
	"github.com/rjboer/gofhss/internal/ser"
	"github.com/rjboer/gofhss/internal/tx"
)

// Session holds what both ends derive from one configuration.
type Session struct {
	Config   config.Config
	Geometry hop.Geometry
	Schedule *hop.Schedule
	logger   logging.Logger
	now      func() time.Time
}

// NewSession validates cfg and builds the hop schedule.
func NewSession(cfg config.Config, logger logging.Logger) (*Session, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rate := hop.Rate(cfg.HopRate)
	geom := hop.GeometryFor(rate)
	if !rate.Known() {
		logger.Warn("hop rate has no geometry row, using the default row",
			logging.F("hop_rate", cfg.HopRate), logging.F("geometry_rate", int(geom.Rate)))
	}
	sched, err := hop.NewSchedule(hop.ScheduleConfig{
		Rate:             rate,
		Order:            cfg.ModulationOrder,
		Seed:             cfg.Seed,
		SampleRate:       cfg.SampleRate,
		BandwidthHz:      cfg.BandwidthHz,
		ChannelSpacingHz: cfg.ChannelSpacingHz,
		CarrierOffsetHz:  cfg.CarrierOffsetHz,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("hop schedule ready",
		logging.F("channels", sched.Channels()),
		logging.F("period", sched.Period()),
		logging.F("symbols_per_frame", geom.SymbolsPerFrame),
		logging.F("samples_per_vector", geom.SamplesPerVector))
	return &Session{Config: cfg, Geometry: geom, Schedule: sched, logger: logger, now: time.Now}, nil
}

// HopDuration is the on-air length of one hop.
func (s *Session) HopDuration() time.Duration {
	return hop.HopDuration(s.Geometry, s.Config.InterpolationFactor, s.Config.SampleRate)
}

// StartHop is the configured first hop, or the current clock slot when
// ClockStart is set.
func (s *Session) StartHop() int64 {
	if s.Config.ClockStart {
		return hop.IndexAt(s.now(), s.HopDuration())
	}
	return s.Config.StartHop
}

// Generate writes the sync word and reference files for this configuration.
// The reference holds FrameCycle frames.
func (s *Session) Generate() error {
	cfg := s.Config
	frames, err := frame.Cycle(s.Geometry, cfg.ModulationOrder, cfg.InfoSeed, cfg.FrameCycle)
	if err != nil {
		return err
	}
	mod, err := tx.NewBasebandModulator(s.Geometry, cfg.ModulationOrder)
	if err != nil {
		return err
	}
	vec, err := mod.Modulate(frames[0])
	if err != nil {
		return err
	}
	sync, err := frame.SyncWordFromVector(vec, s.Geometry.SyncLength())
	if err != nil {
		return err
	}
	if err := frame.WriteSyncWord(cfg.SyncWordPath(), sync); err != nil {
		return err
	}
	if err := frame.WriteReference(cfg.ReferencePath(), frame.NewReference(frames)); err != nil {
		return err
	}
	s.logger.Info("generated link files",
		logging.F("sync_word", cfg.SyncWordPath()),
		logging.F("sync_samples", len(sync)),
		logging.F("reference", cfg.ReferencePath()),
		logging.F("frames", len(frames)))
	return nil
}

// NewTransmitter builds the transmit chain starting at startHop.
func (s *Session) NewTransmitter(startHop int64) (*tx.Transmitter, error) {
	cfg := s.Config
	src, err := frame.NewSource(s.Geometry, cfg.ModulationOrder, cfg.InfoSeed, cfg.FrameCycle)
	if err != nil {
		return nil, err
	}
	return tx.NewTransmitter(tx.Config{
		Geometry:      s.Geometry,
		Order:         cfg.ModulationOrder,
		Interpolation: cfg.InterpolationFactor,
		SampleRate:    cfg.SampleRate,
		StartHop:      startHop,
		Hops:          cfg.Hops,
		Pace:          cfg.Radio.Backend == "tcp",
	}, s.Schedule, src, s.logger)
}

// NewReceiver loads the sync word and builds the receive chain.
func (s *Session) NewReceiver(startHop int64) (*rx.Receiver, error) {
	sync, err := frame.LoadSyncWord(s.Config.SyncWordPath())
	if err != nil {
		return nil, fmt.Errorf("sync word: %w", err)
	}
	return rx.NewReceiver(rx.Config{
		Geometry:      s.Geometry,
		Order:         s.Config.ModulationOrder,
		Interpolation: s.Config.InterpolationFactor,
		SampleRate:    s.Config.SampleRate,
		Threshold:     s.Config.CorrThreshold,
		CarrierLoop:   s.Config.CarrierLoop,
		StartHop:      startHop,
	}, s.Schedule, sync, s.logger)
}

// NewMeasurement loads the reference indices.
func (s *Session) NewMeasurement() (*ser.Measurement, error) {
	ref, err := frame.LoadReference(s.Config.ReferencePath(), s.Geometry.SymbolsPerFrame, s.Config.ModulationOrder)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	return ser.NewMeasurement(ref, s.logger)
}

// RadioConfig maps the session onto the radio boundary.
func (s *Session) RadioConfig() (sdr.Config, error) {
	cfg := s.Config
	format, err := sdr.ParseSampleFormat(cfg.Radio.Format)
	if err != nil {
		return sdr.Config{}, config.Invalid("radio.format", cfg.Radio.Format, err.Error())
	}
	uri := cfg.Radio.Path
	if cfg.Radio.Backend == "tcp" {
		uri = cfg.Radio.Addr
	}
	return sdr.Config{
		SampleRate:   cfg.SampleRate,
		TxGain:       cfg.TxGain,
		RxGain:       cfg.RxGain,
		URI:          uri,
		Format:       format,
		BlockSize:    s.Geometry.HopSamples(cfg.InterpolationFactor),
		DelaySamples: cfg.Channel.DelaySamples,
		NoiseStd:     cfg.Channel.NoiseStd,
		Gain:         cfg.Channel.Gain,
		Depth:        cfg.Channel.Depth,
		Seed:         uint64(cfg.Seed),
	}, nil
}
