package serve

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/config"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/metrics"
	"github.com/sidkik/dirsync/pkg/sync/server"
)

// Mocked for unit testing.
var runServer = server.Run

// New creates a new `serve` command.
func New() *cobra.Command {
	var port int
	var metricsAddress string
	cmd := &cobra.Command{
		Use:   "serve <root>",
		Short: "Serve the files below a directory to dirsync clients",
		Long: "Serve the files below <root>. Clients can list the files, and\n" +
			"download any of them. Nothing is ever modified on the server.",
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				signals := make(chan os.Signal, 1)
				signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
				<-signals
				log.Info("Shutting down")
				cancel()
			}()

			if err := run(ctx, args[0], port, metricsAddress); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "The port to listen on")
	cmd.Flags().StringVar(&metricsAddress, "metrics-address", "",
		"If set, Prometheus metrics are served at http://<address>/metrics")
	return cmd
}

func run(ctx context.Context, root string, port int, metricsAddress string) error {
	if metricsAddress != "" {
		go serveMetrics(metricsAddress)
	}

	if err := runServer(ctx, ":"+strconv.Itoa(port), root); err != nil {
		var ioErr errors.IOError
		if errors.As(err, &ioErr) {
			return errors.NewFriendlyError("Can't serve %q: %s", root, ioErr.Err)
		}
		return errors.WithContext(err, "run server")
	}
	return nil
}

func serveMetrics(address string) {
	defer util.HandlePanic()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.WithField("address", address).Info("Serving metrics")
	if err := http.ListenAndServe(address, mux); err != nil {
		log.WithError(err).Error("Metrics server failed")
	}
}
