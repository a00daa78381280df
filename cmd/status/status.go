package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/buger/goterm"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/sync"
	"github.com/sidkik/dirsync/pkg/sync/client"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `status` command.
func New() *cobra.Command {
	var opts util.ClientOptions
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which files differ between the server and the local directory",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(context.Background(), &opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	opts.AddFlags(cmd)
	return cmd
}

func run(ctx context.Context, opts *util.ClientOptions) error {
	c, err := opts.Connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.RequestFileList(); err != nil {
		return errors.WithContext(err, "request file list")
	}

	for ev := range c.Events() {
		switch ev := ev.(type) {
		case client.FilesListReceived:
			tree, err := c.Classify(ev.Snapshot)
			if err != nil {
				return err
			}
			printTree(stdout, tree)
			return nil
		case client.CommandFailed:
			return errors.WithContext(ev.Err, "list files")
		case client.ConnectivityChanged:
			if !ev.Connected && ev.Err != nil {
				return errors.WithContext(ev.Err, "connection lost")
			}
		}
	}
	return errors.ErrDisconnected
}

func printTree(w io.Writer, tree *sync.Tree) {
	out := tabwriter.NewWriter(w, 0, 10, 5, ' ', 0)
	tree.Walk(func(_ string, depth int, n *sync.Node) {
		indent := strings.Repeat("  ", depth)
		if !n.IsLeaf() {
			fmt.Fprintf(out, "%s%s/\t\n", indent, n.Name)
			return
		}
		fmt.Fprintf(out, "%s%s\t%s\n", indent, n.Name, statusString(n.Status))
	})
	out.Flush()

	upToDate, needUpdate := tree.Counts()
	fmt.Fprintf(w, "\n%d up to date, %d need an update\n", upToDate, needUpdate)
}

func statusString(status sync.Status) string {
	switch status {
	case sync.UpToDate:
		return goterm.Color(status.String(), goterm.GREEN)
	default:
		return goterm.Color(status.String(), goterm.YELLOW)
	}
}
