package util

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/pkg/config"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/sync/client"
)

// Mocked for unit testing.
var parseUserConfig = config.ParseUser

// ClientOptions are the flags shared by the commands that connect to a
// server. Unset flags fall back to the user config.
type ClientOptions struct {
	Host string
	Port int
	Dir  string
}

// AddFlags registers the connection flags on `cmd`.
func (opts *ClientOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&opts.Host, "host", "",
		"The server host. Defaults to the host in "+config.UserConfigPath)
	cmd.Flags().IntVar(&opts.Port, "port", 0,
		"The server port. Defaults to the port in "+config.UserConfigPath)
	cmd.Flags().StringVar(&opts.Dir, "dir", "",
		"The local directory to sync into. Defaults to the dir in "+config.UserConfigPath)
}

// Resolve fills in the options that weren't set with flags.
func (opts *ClientOptions) Resolve() error {
	if opts.Host != "" && opts.Port != 0 && opts.Dir != "" {
		return nil
	}

	cfg, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	if opts.Host == "" {
		opts.Host = cfg.Host
	}
	if opts.Port == 0 {
		opts.Port = cfg.Port
	}
	if opts.Dir == "" {
		opts.Dir = cfg.Dir
	}
	return nil
}

// Address returns the server address in host:port form.
func (opts ClientOptions) Address() string {
	return fmt.Sprintf("%s:%d", opts.Host, opts.Port)
}

// Connect resolves the options, and returns a client that has finished
// connecting to the server.
func (opts *ClientOptions) Connect(ctx context.Context) (*client.Client, error) {
	if err := opts.Resolve(); err != nil {
		return nil, err
	}

	c := client.New(opts.Dir)
	if err := c.Connect(ctx, opts.Host, opts.Port); err != nil {
		c.Close()

		reason := err
		var connErr errors.ConnectionError
		if errors.As(err, &connErr) {
			reason = connErr.Err
		}
		return nil, errors.WithContext(errors.NewFriendlyError(
			"Failed to connect to the dirsync server at %s: %s\n"+
				"Is `dirsync serve` running there?", opts.Address(), reason),
			"connect")
	}

	// Consume the connected event so that callers only see the results of
	// their own commands.
	select {
	case <-c.Events():
	case <-time.After(5 * time.Second):
		c.Close()
		return nil, errors.New("timed out waiting for connection")
	}
	return c, nil
}
