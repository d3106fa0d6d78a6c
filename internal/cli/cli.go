// Package cli parses the command line shared by the hop tools. Settings are
// layered: built-in defaults, then the YAML config file, then FHSS_*
// environment variables, then flags.
package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/rjboer/gofhss/internal/config"
	"github.com/rjboer/gofhss/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FHSS_"

// Options is the parsed command line.
type Options struct {
	ConfigPath string
	SaveConfig bool
	Config     config.Config
	Args       []string
}

// Parse reads args for tool. extra registers tool-specific flags; it may be
// nil. A --help request returns pflag.ErrHelp.
func Parse(tool string, args []string, lookup func(string) (string, bool), extra func(*pflag.FlagSet)) (Options, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	var opts Options
	var scratch config.Config

	fs := pflag.NewFlagSet(tool, pflag.ContinueOnError)
	fs.StringVar(&opts.ConfigPath, "config", envString(lookup, "CONFIG", ""), "YAML configuration file")
	fs.BoolVar(&opts.SaveConfig, "save-config", false, "write the effective configuration back to --config")
	bind(fs, &scratch, lookup)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return Options{}, err
	}
	// rebinding applies the environment over the file; then replay the flags
	// the user actually set
	final := pflag.NewFlagSet(tool, pflag.ContinueOnError)
	bind(final, &cfg, lookup)
	var setErr error
	fs.Visit(func(f *pflag.Flag) {
		if setErr != nil || final.Lookup(f.Name) == nil {
			return
		}
		if err := final.Set(f.Name, f.Value.String()); err != nil {
			setErr = fmt.Errorf("flag --%s: %w", f.Name, err)
		}
	})
	if setErr != nil {
		return Options{}, setErr
	}

	opts.Config = cfg
	opts.Args = fs.Args()
	if opts.SaveConfig {
		if opts.ConfigPath == "" {
			return Options{}, fmt.Errorf("--save-config needs --config")
		}
		if err := config.Save(opts.ConfigPath, cfg); err != nil {
			return Options{}, fmt.Errorf("save config: %w", err)
		}
	}
	return opts, nil
}

// bind registers every configuration flag on fs, writing into c. Defaults
// are the current values of c with environment overrides applied.
func bind(fs *pflag.FlagSet, c *config.Config, lookup func(string) (string, bool)) {
	fs.IntVar(&c.HopRate, "hop-rate", envInt(lookup, "HOP_RATE", c.HopRate), "hops per second")
	fs.IntVar(&c.ModulationOrder, "psk", envInt(lookup, "PSK", c.ModulationOrder), "PSK order (2, 4 or 8)")
	fs.Int64Var(&c.Seed, "seed", envInt64(lookup, "SEED", c.Seed), "hop sequence seed")
	fs.Int64Var(&c.InfoSeed, "info-seed", envInt64(lookup, "INFO_SEED", c.InfoSeed), "payload seed")
	fs.IntVar(&c.FrameCycle, "frame-cycle", envInt(lookup, "FRAME_CYCLE", c.FrameCycle), "frames before the payload repeats")
	fs.Float64Var(&c.SampleRate, "sample-rate", envFloat(lookup, "SAMPLE_RATE", c.SampleRate), "wideband sample rate in Hz")
	fs.IntVar(&c.InterpolationFactor, "interp", envInt(lookup, "INTERP", c.InterpolationFactor), "interpolation factor")
	fs.Float64Var(&c.TxGain, "tx-gain", envFloat(lookup, "TX_GAIN", c.TxGain), "TX gain (dB)")
	fs.Float64Var(&c.RxGain, "rx-gain", envFloat(lookup, "RX_GAIN", c.RxGain), "RX gain (dB)")
	fs.Float64Var(&c.BandwidthHz, "bandwidth", envFloat(lookup, "BANDWIDTH", c.BandwidthHz), "hopping bandwidth in Hz")
	fs.Float64Var(&c.ChannelSpacingHz, "spacing", envFloat(lookup, "SPACING", c.ChannelSpacingHz), "sub-band spacing in Hz")
	fs.Float64Var(&c.CarrierOffsetHz, "carrier-offset", envFloat(lookup, "CARRIER_OFFSET", c.CarrierOffsetHz), "centre of the hopping band in Hz")
	fs.Float64Var(&c.CorrThreshold, "threshold", envFloat(lookup, "THRESHOLD", c.CorrThreshold), "normalized correlation threshold")
	fs.BoolVar(&c.CarrierLoop, "carrier-loop", envBool(lookup, "CARRIER_LOOP", c.CarrierLoop), "track residual carrier phase with a Costas loop")
	fs.IntVar(&c.LossHops, "loss-hops", envInt(lookup, "LOSS_HOPS", c.LossHops), "hops without acquisition before the link is degraded (0 disables)")
	fs.Int64Var(&c.StartHop, "start-hop", envInt64(lookup, "START_HOP", c.StartHop), "first hop index")
	fs.BoolVar(&c.ClockStart, "clock-start", envBool(lookup, "CLOCK_START", c.ClockStart), "derive the first hop from the UTC clock")
	fs.IntVar(&c.Hops, "hops", envInt(lookup, "HOPS", c.Hops), "hops to transmit (0 runs until stopped)")
	fs.StringVar(&c.SyncWordDir, "sync-dir", envString(lookup, "SYNC_DIR", c.SyncWordDir), "sync word directory")
	fs.StringVar(&c.ReferenceDir, "ref-dir", envString(lookup, "REF_DIR", c.ReferenceDir), "reference symbol directory")

	fs.StringVar(&c.Radio.Backend, "backend", envString(lookup, "BACKEND", c.Radio.Backend), "sample stream backend (loopback|file|tcp)")
	fs.StringVar(&c.Radio.Path, "path", envString(lookup, "PATH_IQ", c.Radio.Path), "IQ file for the file backend")
	fs.StringVar(&c.Radio.Addr, "addr", envString(lookup, "ADDR", c.Radio.Addr), "host:port for the tcp backend")
	fs.StringVar(&c.Radio.Format, "format", envString(lookup, "FORMAT", c.Radio.Format), "sample format (cf32|sc16)")

	fs.IntVar(&c.Channel.DelaySamples, "delay", envInt(lookup, "DELAY", c.Channel.DelaySamples), "loopback delay in samples")
	fs.Float64Var(&c.Channel.NoiseStd, "noise", envFloat(lookup, "NOISE", c.Channel.NoiseStd), "loopback noise standard deviation")
	fs.Float64Var(&c.Channel.Gain, "gain", envFloat(lookup, "GAIN", c.Channel.Gain), "loopback amplitude gain")

	fs.StringVar(&c.Log.Level, "log-level", envString(lookup, "LOG_LEVEL", c.Log.Level), "log level (debug|info|warn|error)")
	fs.StringVar(&c.Log.Format, "log-format", envString(lookup, "LOG_FORMAT", c.Log.Format), "log format (text|json)")

	fs.StringVar(&c.Telemetry.WebAddr, "web-addr", envString(lookup, "WEB_ADDR", c.Telemetry.WebAddr), "optional web telemetry listen address (e.g. :8080)")
	fs.IntVar(&c.Telemetry.HistoryLimit, "history-limit", envInt(lookup, "HISTORY_LIMIT", c.Telemetry.HistoryLimit), "maximum samples kept in telemetry history")
	fs.BoolVar(&c.Telemetry.Advertise, "advertise", envBool(lookup, "ADVERTISE", c.Telemetry.Advertise), "announce services over mDNS")
	fs.StringVar(&c.Telemetry.CSVPattern, "csv", envString(lookup, "CSV", c.Telemetry.CSVPattern), "strftime pattern of the per-frame SER log")
}

// Logger builds the process logger from the configuration and installs it
// as the default.
func Logger(cfg config.Config, out io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, config.Invalid("log.level", cfg.Log.Level, err.Error())
	}
	format, err := logging.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, config.Invalid("log.format", cfg.Log.Format, err.Error())
	}
	if out == nil {
		out = os.Stderr
	}
	l := logging.New(level, format, out)
	logging.SetDefault(l)
	return l, nil
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envInt64(lookup func(string) (string, bool), key string, def int64) int64 {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(lookup func(string) (string, bool), key string, def bool) bool {
	if val, ok := lookup(EnvPrefix + key); ok {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(EnvPrefix + key); ok {
		return val
	}
	return def
}
