package echo

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/sync/client"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `echo` command.
func New() *cobra.Command {
	var opts util.ClientOptions
	cmd := &cobra.Command{
		Use:   "echo <text>...",
		Short: "Check that the server is responding",
		Long:  "Send text to the server, and print its reply and the round trip time.",
		Args:  cobra.MinimumNArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			if err := run(context.Background(), &opts, strings.Join(args, " ")); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	opts.AddFlags(cmd)
	return cmd
}

func run(ctx context.Context, opts *util.ClientOptions, text string) error {
	c, err := opts.Connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	start := time.Now()
	if err := c.SendEcho(text); err != nil {
		return errors.WithContext(err, "send echo")
	}

	for ev := range c.Events() {
		switch ev := ev.(type) {
		case client.EchoReceived:
			fmt.Fprintf(stdout, "%s (%s)\n", ev.Text, time.Since(start).Round(time.Microsecond))
			return nil
		case client.CommandFailed:
			return errors.WithContext(ev.Err, "echo")
		case client.ConnectivityChanged:
			if !ev.Connected && ev.Err != nil {
				return errors.WithContext(ev.Err, "connection lost")
			}
		}
	}
	return errors.ErrDisconnected
}
