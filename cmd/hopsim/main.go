// Command hopsim runs the transmitter and receiver back to back over a
// simulated channel and prints the resulting symbol error rate.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rjboer/gofhss/internal/app"
	"github.com/rjboer/gofhss/internal/cli"
)

// defaultHops bounds a simulation when no hop count is configured.
const defaultHops = 60

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "hopsim: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), out, logOut io.Writer) (err error) {
	generate := true
	opts, err := cli.Parse("hopsim", args, lookup, func(fs *pflag.FlagSet) {
		fs.BoolVar(&generate, "generate", true, "write the sync word and reference files first")
	})
	if err != nil {
		return err
	}
	cfg := opts.Config
	cfg.Radio.Backend = "loopback"
	if cfg.Hops == 0 {
		cfg.Hops = defaultHops
	}
	logger, err := cli.Logger(cfg, logOut)
	if err != nil {
		return err
	}
	sess, err := app.NewSession(cfg, logger)
	if err != nil {
		return err
	}
	if generate {
		if err := sess.Generate(); err != nil {
			return err
		}
	}

	surf, err := app.StartTelemetry(ctx, sess, "loopback")
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, surf.Close()) }()
	mon, err := surf.NewMonitor(sess)
	if err != nil {
		return err
	}

	st, err := app.Simulate(ctx, sess, mon)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintf(out, "hop rate %d psk %d: %d frames, %d symbols, %d errors, SER %.6f (last %d frames %.6f), link %s\n",
		cfg.HopRate, cfg.ModulationOrder, st.Frames, st.Symbols, st.Errors, st.SER,
		st.RecentFrames, st.Recent, mon.Link().State())
	return nil
}
