// Command hopgen writes the sync word and reference symbol files that the
// transmitter and receiver of one configuration share.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/rjboer/gofhss/internal/app"
	"github.com/rjboer/gofhss/internal/cli"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.LookupEnv, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "hopgen: %v\n", err)
		os.Exit(1)
	}
}

func run(_ context.Context, args []string, lookup func(string) (string, bool), logOut io.Writer) error {
	opts, err := cli.Parse("hopgen", args, lookup, nil)
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
	return sess.Generate()
}
