package ui

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/sync/client"
)

// chanWriter provides an io.Writer interface for writing to a channel.
type chanWriter chan []byte

func (w chanWriter) Write(p []byte) (int, error) {
	cpy := make([]byte, len(p))
	copy(cpy, p)
	w <- cpy
	return len(p), nil
}

// New creates a new `ui` command.
func New() *cobra.Command {
	var opts util.ClientOptions
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Browse and update the local directory interactively",
		Long: "Show the server's files and whether each is up to date locally.\n" +
			"Files can be updated individually, by directory, or all at once.",
		Args: cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(&opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	opts.AddFlags(cmd)
	return cmd
}

func run(opts *util.ClientOptions) error {
	if err := opts.Resolve(); err != nil {
		return err
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return errors.WithContext(err, "create local directory")
	}

	// Allow 256 `Write`s without a corresponding `Read`. We give a generous
	// buffer here because if the channel becomes full, calls to write log
	// messages will block until there's space in the channel (which means that
	// any work in the same thread can't proceed until the log message is
	// written to the UI).
	loggerOut := chanWriter(make(chan []byte, 256))
	log.SetOutput(loggerOut)
	log.SetFormatter(&log.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		TimestampFormat: time.Kitchen,
	})
	defer func() {
		log.SetOutput(os.Stderr)
		log.SetFormatter(&log.TextFormatter{})
	}()

	c := client.New(opts.Dir)
	defer c.Close()

	ui := &gui{
		client:    c,
		opts:      *opts,
		model:     newModel(opts.Address()),
		loggerOut: loggerOut,
	}
	return ui.Run()
}
