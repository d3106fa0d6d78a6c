package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"zero rate", func(c *Config) { c.HopRate = 0 }, "hop_rate"},
		{"order 16", func(c *Config) { c.ModulationOrder = 16 }, "modulation_order"},
		{"negative seed", func(c *Config) { c.Seed = -1 }, "seed"},
		{"zero frame cycle", func(c *Config) { c.FrameCycle = 0 }, "frame_cycle"},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, "sample_rate"},
		{"zero interp", func(c *Config) { c.InterpolationFactor = 0 }, "interpolation_factor"},
		{"threshold above one", func(c *Config) { c.CorrThreshold = 1.5 }, "corr_threshold"},
		{"bad backend", func(c *Config) { c.Radio.Backend = "pluto" }, "radio.backend"},
		{"bad format", func(c *Config) { c.Radio.Format = "cs8" }, "radio.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mut(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestUnknownRateIsNotAConfigError(t *testing.T) {
	cfg := Default()
	cfg.HopRate = 7
	assert.NoError(t, cfg.Validate())
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.SyncWordDir = "sw"
	cfg.ReferenceDir = "ref"
	assert.Equal(t, filepath.Join("sw", "sync_word_hop20_psk4"), cfg.SyncWordPath())
	assert.Equal(t, filepath.Join("ref", "idxs_hop20_psk4"), cfg.ReferencePath())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhss.yaml")
	cfg := Default()
	cfg.HopRate = 50
	cfg.Channel.DelaySamples = 512
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhss.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hop_rate: 100\n"), 0o644))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, got.HopRate)
	assert.Equal(t, 4, got.ModulationOrder)
	assert.Equal(t, 256, got.InterpolationFactor)
}

func TestLoadOrDefaultMissing(t *testing.T) {
	got, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), got)
}
