package hop

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mathext/prng"

	"github.com/rjboer/gofhss/internal/config"
)

// ScheduleConfig carries every input the hop sequence depends on. Two
// endpoints built from equal ScheduleConfigs produce identical schedules.
type ScheduleConfig struct {
	Rate             Rate
	Order            int
	Seed             int64
	SampleRate       float64
	BandwidthHz      float64
	ChannelSpacingHz float64
	CarrierOffsetHz  float64
}

// Schedule maps a hop index to a frequency offset. The cyclic channel
// sequence is derived once at construction and never mutated.
type Schedule struct {
	cfg      ScheduleConfig
	channels []float64
	seq      []int
}

// NewSchedule validates cfg and derives the channel plan and hop sequence.
func NewSchedule(cfg ScheduleConfig) (*Schedule, error) {
	switch {
	case cfg.Rate <= 0:
		return nil, config.Invalid("hop_rate", cfg.Rate, "must be positive")
	case cfg.Order != 2 && cfg.Order != 4 && cfg.Order != 8:
		return nil, config.Invalid("modulation_order", cfg.Order, "must be 2, 4 or 8")
	case cfg.Seed < 0:
		return nil, config.Invalid("seed", cfg.Seed, "must not be negative")
	case cfg.SampleRate <= 0:
		return nil, config.Invalid("sample_rate", cfg.SampleRate, "must be positive")
	case cfg.BandwidthHz <= 0:
		return nil, config.Invalid("bandwidth_hz", cfg.BandwidthHz, "must be positive")
	case cfg.ChannelSpacingHz <= 0:
		return nil, config.Invalid("channel_spacing_hz", cfg.ChannelSpacingHz, "must be positive")
	}

	n := int(math.Floor(cfg.BandwidthHz / cfg.ChannelSpacingHz))
	if n < 1 {
		n = 1
	}
	channels := make([]float64, n)
	half := math.Floor(float64(n) / 2)
	nyquist := cfg.SampleRate / 2
	for i := range channels {
		f := (float64(i)-half)*cfg.ChannelSpacingHz + cfg.CarrierOffsetHz
		if math.Abs(f) >= nyquist {
			return nil, config.Invalid("carrier_offset_hz", cfg.CarrierOffsetHz, "channel plan exceeds the Nyquist band")
		}
		channels[i] = f
	}

	src := prng.NewMT19937()
	src.Seed(seedFor(cfg))
	seq := make([]int, 2*n)
	for i := range seq {
		seq[i] = int(uint64(src.Uint32()) * uint64(n) >> 32)
	}

	return &Schedule{cfg: cfg, channels: channels, seq: seq}, nil
}

// seedFor folds rate and order into the seed so that schedules for different
// sessions diverge even with the same numeric seed.
func seedFor(cfg ScheduleConfig) uint64 {
	z := uint64(cfg.Seed) ^ uint64(cfg.Rate)<<32 ^ uint64(cfg.Order)<<48
	// splitmix64 finalizer
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Config returns the inputs the schedule was built from.
func (s *Schedule) Config() ScheduleConfig { return s.cfg }

// Channels is the number of sub-bands in the channel plan.
func (s *Schedule) Channels() int { return len(s.channels) }

// Period is the length of the cyclic hop sequence.
func (s *Schedule) Period() int { return len(s.seq) }

// Channel returns the sub-band used by hop i.
func (s *Schedule) Channel(i int64) int {
	p := int64(len(s.seq))
	idx := i % p
	if idx < 0 {
		idx += p
	}
	return s.seq[idx]
}

// Offset returns the frequency offset in Hz of hop i relative to the RF
// center. It is a pure function of the configuration and i.
func (s *Schedule) Offset(i int64) float64 {
	return s.channels[s.Channel(i)]
}

// ChannelOffset returns the offset of sub-band c.
func (s *Schedule) ChannelOffset(c int) float64 { return s.channels[c] }

// IndexAt returns the hop slot containing t, counted from UTC midnight. Both
// endpoints derive the same index from synchronized clocks.
func IndexAt(t time.Time, hopDuration time.Duration) int64 {
	if hopDuration <= 0 {
		return 0
	}
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int64(t.Sub(midnight) / hopDuration)
}

// HopDuration is the on-air duration of one hop for the given geometry.
func HopDuration(g Geometry, interp int, sampleRate float64) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(g.HopSamples(interp)) / sampleRate * float64(time.Second)))
}

// Equal reports whether both schedules produce the same offset for every hop.
func (s *Schedule) Equal(o *Schedule) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.seq) != len(o.seq) || len(s.channels) != len(o.channels) {
		return false
	}
	for i, c := range s.seq {
		if s.channels[c] != o.channels[o.seq[i]] {
			return false
		}
	}
	return true
}
