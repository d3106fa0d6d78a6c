// Command hoprx receives the hopped waveform from a file or a tcp stream and
// reports the symbol error rate.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rjboer/gofhss/internal/app"
	"github.com/rjboer/gofhss/internal/cli"
	"github.com/rjboer/gofhss/internal/logging"
	"github.com/rjboer/gofhss/internal/sdr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "hoprx: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), logOut io.Writer) (err error) {
	opts, err := cli.Parse("hoprx", args, lookup, nil)
	if err != nil {
		return err
	}
	logger, err := cli.Logger(opts.Config, logOut)
	if err != nil {
		return err
	}
	sess, err := app.NewSession(opts.Config, logger)
	if err != nil {
		return err
	}
	r, err := sess.NewReceiver(sess.StartHop())
	if err != nil {
		return err
	}

	src, err := app.OpenSource(ctx, sess)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, src.Close()) }()

	surf, err := app.StartTelemetry(ctx, sess, opts.Config.Radio.Backend)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, surf.Close()) }()
	if ts, ok := src.(*sdr.TCPSource); ok {
		addr := ts.Addr().(*net.TCPAddr)
		logger.Info("waiting for transmitter", logging.F("addr", addr.String()))
		if opts.Config.Telemetry.Advertise {
			surf.AdvertiseStream(sess, addr.Port)
		}
	}

	mon, err := surf.NewMonitor(sess)
	if err != nil {
		return err
	}
	err = app.Receive(ctx, r, src, mon)
	st := mon.Measurement().Statistics()
	logger.Info("receiver stopped",
		logging.F("frames", st.Frames),
		logging.F("ser", st.SER),
		logging.F("link_state", string(mon.Link().State())))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
