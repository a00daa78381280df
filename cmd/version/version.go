package version

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/pkg/config"
	"github.com/sidkik/dirsync/pkg/sync/client"
	"github.com/sidkik/dirsync/pkg/version"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `version` command.
func New() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of dirsync.",
		Long: "Print the local version of dirsync. With --remote, also check\n" +
			"that the configured server is reachable.",
		Run: func(_ *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "local version:  %s\n", version.Version)
			if remote {
				fmt.Fprintf(stdout, "server:         %s\n", checkServer())
			}
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Also check the configured server")
	return cmd
}

// checkServer does an echo round trip with the configured server.
func checkServer() string {
	cfg, err := config.ParseUser()
	if err != nil {
		return fmt.Sprintf("unknown (%s)", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := client.New(cfg.Dir)
	defer c.Close()
	if err := c.Connect(ctx, cfg.Host, cfg.Port); err != nil {
		return fmt.Sprintf("unreachable (%s)", err)
	}

	start := time.Now()
	if err := c.SendEcho("version"); err != nil {
		return fmt.Sprintf("unreachable (%s)", err)
	}

	for {
		select {
		case ev := <-c.Events():
			switch ev := ev.(type) {
			case client.EchoReceived:
				return fmt.Sprintf("reachable at %s:%d (%s)", cfg.Host, cfg.Port,
					time.Since(start).Round(time.Millisecond))
			case client.ConnectivityChanged:
				if !ev.Connected {
					return fmt.Sprintf("disconnected (%v)", ev.Err)
				}
			}
		case <-ctx.Done():
			return "timed out"
		}
	}
}
