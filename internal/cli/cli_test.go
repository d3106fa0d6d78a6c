package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/logging"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestParseDefaults(t *testing.T) {
	opts, err := Parse("hoprx", nil, noEnv, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if opts.Config != config.Default() {
		t.Fatalf("unexpected defaults: %#v", opts.Config)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	lookup := envMap(map[string]string{
		"FHSS_HOP_RATE":    "50",
		"FHSS_PSK":         "8",
		"FHSS_BACKEND":     "tcp",
		"FHSS_NOISE":       "0.1",
		"FHSS_CLOCK_START": "true",
		"FHSS_SEED":        "notanumber",
	})
	opts, err := Parse("hoprx", []string{"--psk", "2"}, lookup, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg := opts.Config
	if cfg.HopRate != 50 || cfg.Radio.Backend != "tcp" || cfg.Channel.NoiseStd != 0.1 || !cfg.ClockStart {
		t.Fatalf("env overrides not applied: %#v", cfg)
	}
	if cfg.ModulationOrder != 2 {
		t.Fatalf("flag should win over env, got psk %d", cfg.ModulationOrder)
	}
	if cfg.Seed != 42 {
		t.Fatalf("unparsable env value should keep the default, got %d", cfg.Seed)
	}
}

func TestParseConfigFileLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhss.yaml")
	file := config.Default()
	file.HopRate = 10
	file.StartHop = 99
	file.Telemetry.WebAddr = ":9000"
	if err := config.Save(path, file); err != nil {
		t.Fatalf("save: %v", err)
	}

	lookup := envMap(map[string]string{"FHSS_START_HOP": "7"})
	opts, err := Parse("hopsim", []string{"--config", path, "--web-addr", ":9100"}, lookup, nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg := opts.Config
	if cfg.HopRate != 10 {
		t.Fatalf("file value lost: hop rate %d", cfg.HopRate)
	}
	if cfg.StartHop != 7 {
		t.Fatalf("env should win over file, got start hop %d", cfg.StartHop)
	}
	if cfg.Telemetry.WebAddr != ":9100" {
		t.Fatalf("flag should win over file, got %q", cfg.Telemetry.WebAddr)
	}
}

func TestParseSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fhss.yaml")
	if _, err := Parse("hopgen", []string{"--config", path, "--save-config", "--hop-rate", "100"}, noEnv, nil); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if cfg.HopRate != 100 {
		t.Fatalf("saved hop rate %d", cfg.HopRate)
	}

	if _, err := Parse("hopgen", []string{"--save-config"}, noEnv, nil); err == nil {
		t.Fatalf("expected error for --save-config without --config")
	}
}

func TestParseExtraFlags(t *testing.T) {
	var generate bool
	extra := func(fs *pflag.FlagSet) { fs.BoolVar(&generate, "generate", false, "") }
	opts, err := Parse("hopsim", []string{"--generate", "--hops", "12", "rest"}, noEnv, extra)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !generate || opts.Config.Hops != 12 {
		t.Fatalf("extra flag not applied: generate=%v hops=%d", generate, opts.Config.Hops)
	}
	if len(opts.Args) != 1 || opts.Args[0] != "rest" {
		t.Fatalf("positional args %v", opts.Args)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("hoprx", []string{"--hop-rate", "fast"}, noEnv, nil); err == nil {
		t.Fatalf("expected error for bad flag value")
	}
	if _, err := Parse("hoprx", []string{"--help"}, noEnv, nil); !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("expected ErrHelp, got %v", err)
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("hop_rate: [1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Parse("hoprx", []string{"--config", bad}, noEnv, nil); err == nil {
		t.Fatalf("expected error for malformed config file")
	}
}

func TestLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	var buf bytes.Buffer
	l, err := Logger(cfg, &buf)
	if err != nil {
		t.Fatalf("Logger failed: %v", err)
	}
	l.Info("hello", logging.F("k", 1))
	if !bytes.Contains(buf.Bytes(), []byte(`"k":1`)) {
		t.Fatalf("unexpected log output %q", buf.String())
	}

	cfg.Log.Level = "loud"
	if _, err := Logger(cfg, &buf); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}
