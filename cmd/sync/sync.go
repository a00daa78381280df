package sync

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/buger/goterm"
	"github.com/spf13/cobra"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync/client"
)

// Mocked for unit testing.
var stdout io.Writer = os.Stdout

// New creates a new `sync` command.
func New() *cobra.Command {
	var opts util.ClientOptions
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download every file that's missing or out of date locally",
		Long: "Compare the server's files with the local directory, and download\n" +
			"the files that are missing or differ in size or modification time.\n" +
			"Local files that don't exist on the server are left alone.",
		Args: cobra.NoArgs,
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

	fmt.Fprintf(stdout, "Syncing %s into %s\n", opts.Address(), c.Root())
	syncer := client.NewSyncer(c)
	syncer.OnEvent = printEvent
	result, err := syncer.Sync(ctx)
	if err != nil {
		return errors.WithContext(err, "sync")
	}

	printResult(result)
	if len(result.Failed) != 0 {
		return errors.NewFriendlyError("Failed to download %d file(s)", len(result.Failed))
	}
	return nil
}

func printEvent(ev protocol.Event) {
	switch ev := ev.(type) {
	case client.TransferProgress:
		// Only print the start and end of each transfer so that the output
		// is readable when it isn't a terminal.
		if ev.ReceivedSize == 0 && ev.TotalSize != 0 {
			fmt.Fprintf(stdout, "  %s (%d bytes)...\n", ev.Path, ev.TotalSize)
		}
	case client.FileReceived:
		fmt.Fprintf(stdout, "  %s %s\n", ev.Path, goterm.Color("done", goterm.GREEN))
	case client.CommandFailed:
		if ev.Path != "" {
			fmt.Fprintf(stdout, "  %s %s\n", ev.Path,
				goterm.Color(errors.GetPrintableMessage(ev.Err), goterm.RED))
		}
	}
}

func printResult(result client.Result) {
	upToDate, needUpdate := result.Tree.Counts()
	fmt.Fprintf(stdout, "Downloaded %d file(s). %d up to date, %d need an update.\n",
		len(result.Fetched), upToDate, needUpdate)

	var failed []string
	for path := range result.Failed {
		failed = append(failed, path)
	}
	sort.Strings(failed)
	for _, path := range failed {
		fmt.Fprintf(stdout, "%s: %s\n", goterm.Color(path, goterm.RED),
			errors.GetPrintableMessage(result.Failed[path]))
	}

	for _, err := range result.Skipped {
		fmt.Fprintf(stdout, "%s %s\n", goterm.Color("Couldn't scan", goterm.YELLOW),
			errors.GetPrintableMessage(err))
	}
}
