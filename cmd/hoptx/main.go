// Command hoptx transmits the hopped waveform to a file or a tcp receiver.
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
	"github.com/rjboer/gofhss/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "hoptx: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), logOut io.Writer) error {
	opts, err := cli.Parse("hoptx", args, lookup, nil)
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

	t, err := sess.NewTransmitter(sess.StartHop())
	if err != nil {
		return err
	}
	sink, err := app.OpenSink(ctx, sess)
	if err != nil {
		return err
	}
	err = app.Transmit(ctx, t, sink)
	logger.Info("transmitter stopped", logging.F("hops", t.Sent()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
