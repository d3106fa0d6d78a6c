package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/rjboer/gofhss/internal/app"
	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/logging"
	"github.com/rjboer/gofhss/internal/sdr"
)

func noEnv(string) (string, bool) { return "", false }

// recordFile transmits hops into an IQ file and returns the configuration
// that produced it.
func recordFile(t *testing.T, hops int) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SampleRate = 153_600
	cfg.InterpolationFactor = 16
	cfg.BandwidthHz = 60e3
	cfg.CarrierOffsetHz = 20e3
	cfg.Hops = hops
	cfg.SyncWordDir = filepath.Join(dir, "head_sample")
	cfg.ReferenceDir = filepath.Join(dir, "frame_idxs")
	cfg.Radio = config.RadioConfig{Backend: "file", Path: filepath.Join(dir, "burst.cf32"), Format: "cf32"}
	cfg.Log.Level = "error"

	logger := logging.New(logging.Error, logging.Text, io.Discard)
	sess, err := app.NewSession(cfg, logger)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := sess.Generate(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	trans, err := sess.NewTransmitter(0)
	if err != nil {
		t.Fatalf("transmitter: %v", err)
	}
	sink, err := app.OpenSink(context.Background(), sess)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	if err := app.Transmit(context.Background(), trans, sink); err != nil {
		t.Fatalf("transmit: %v", err)
	}
	return cfg
}

func TestRunFromFile(t *testing.T) {
	cfg := recordFile(t, 6)
	cfg.Telemetry.CSVPattern = filepath.Join(t.TempDir(), "ser.csv")
	path := filepath.Join(t.TempDir(), "fhss.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	if err := run(context.Background(), []string{"--config", path}, noEnv, io.Discard); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	matches, _ := filepath.Glob(cfg.Telemetry.CSVPattern)
	if len(matches) != 1 {
		t.Fatalf("expected the per-frame log to be written, found %v", matches)
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := recordFile(t, 1)
	path := filepath.Join(t.TempDir(), "fhss.yaml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	args := []string{"--config", path, "--path", filepath.Join(t.TempDir(), "missing.cf32")}
	if err := run(context.Background(), args, noEnv, io.Discard); err == nil {
		t.Fatalf("expected error for a missing IQ file")
	}
}

func TestFormatFlagReachesRadio(t *testing.T) {
	cfg := recordFile(t, 1)
	cfg.Radio.Format = "sc16"
	sess, err := app.NewSession(cfg, nil)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	rcfg, err := sess.RadioConfig()
	if err != nil {
		t.Fatalf("radio config: %v", err)
	}
	if rcfg.Format != sdr.SC16 || rcfg.URI != cfg.Radio.Path {
		t.Fatalf("unexpected radio config %#v", rcfg)
	}
}
