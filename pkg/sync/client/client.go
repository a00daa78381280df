// Package client implements the dirsync client: the commands it sends to a
// server, and the Syncer that uses them to bring a local directory up to
// date.
package client

import (
	"context"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync"
)

// Mocked for unit testing.
var (
	fs    = afero.NewOsFs()
	clock = clockwork.NewRealClock()
)

// Client syncs files from a server into a local root directory. Results are
// reported asynchronously on the Events channel.
type Client struct {
	root    string
	handler *protocol.Handler
}

// New returns a disconnected client that stores fetched files below `root`.
func New(root string) *Client {
	return &Client{
		root:    root,
		handler: protocol.NewHandler(),
	}
}

// Root returns the local root directory.
func (c *Client) Root() string {
	return c.root
}

// Connect opens the connection to the server.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	return c.handler.Connect(ctx, host, port)
}

// Disconnect closes the connection. Pending commands fail with
// ErrDisconnected.
func (c *Client) Disconnect() {
	c.handler.Disconnect()
}

// Close disconnects, and closes the Events channel.
func (c *Client) Close() {
	c.handler.Close()
}

// State returns the state of the connection.
func (c *Client) State() protocol.State {
	return c.handler.State()
}

// Events returns the channel that results are published on.
func (c *Client) Events() <-chan protocol.Event {
	return c.handler.Events()
}

// SendEcho asks the server to echo `text`. The reply is published as an
// EchoReceived event.
func (c *Client) SendEcho(text string) error {
	return c.handler.Enqueue(echoCommand{text})
}

// RequestFileList asks the server for its snapshot. The reply is published
// as a FilesListReceived event.
func (c *Client) RequestFileList() error {
	return c.handler.Enqueue(listCommand{})
}

// RequestFile fetches the file at `path`, relative to the server's root, into
// the same place below the local root. Progress is published as
// TransferProgress events, followed by FileReceived or CommandFailed.
func (c *Client) RequestFile(path string) error {
	normalized, err := sync.NormalizePath(path)
	if err != nil {
		return err
	}

	dest, err := sync.LocalPath(c.root, normalized)
	if err != nil {
		return err
	}
	return c.handler.Enqueue(newFetchCommand(fs, clock, normalized, dest))
}

// LocalSnapshot scans the local root. A root that doesn't exist yet is
// empty. Paths below the root that couldn't be read are returned in
// `skipped`, and are treated as missing.
func (c *Client) LocalSnapshot() (snapshot sync.Snapshot, skipped []error, err error) {
	snapshot, skipped, err = sync.Scan(fs, c.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, nil
	}
	return snapshot, skipped, err
}

// Classify compares a remote snapshot against the local root.
func (c *Client) Classify(remote sync.Snapshot) (*sync.Tree, error) {
	tree, _, err := c.classify(remote)
	return tree, err
}

func (c *Client) classify(remote sync.Snapshot) (*sync.Tree, []error, error) {
	local, skipped, err := c.LocalSnapshot()
	if err != nil {
		return nil, nil, errors.WithContext(err, "scan local root")
	}
	return sync.BuildTree(remote, local), skipped, nil
}
