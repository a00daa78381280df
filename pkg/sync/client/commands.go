package client

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync"
	"github.com/sidkik/dirsync/pkg/transfer"
	"github.com/sidkik/dirsync/pkg/wire"
)

type echoCommand struct {
	text string
}

func (c echoCommand) Name() string {
	return EchoCommand
}

func (c echoCommand) Request() wire.Frame {
	return wire.NewEchoRequest(c.text)
}

func (c echoCommand) Handle(f wire.Frame, emit protocol.Emitter) (bool, error) {
	if f.Kind != wire.EchoResponse {
		return false, unexpectedFrame(c, f)
	}
	emit(EchoReceived{Text: string(f.Payload)})
	return true, nil
}

func (c echoCommand) Fail(err error, emit protocol.Emitter) {
	emit(CommandFailed{Command: EchoCommand, Err: err})
}

type listCommand struct{}

func (c listCommand) Name() string {
	return ListCommand
}

func (c listCommand) Request() wire.Frame {
	return wire.NewListRequest()
}

func (c listCommand) Handle(f wire.Frame, emit protocol.Emitter) (bool, error) {
	if f.Kind != wire.ListResponse {
		return false, unexpectedFrame(c, f)
	}

	snapshot, err := wire.ParseListResponse(f.Payload)
	if err != nil {
		return false, err
	}
	emit(FilesListReceived{Snapshot: snapshot})
	return true, nil
}

func (c listCommand) Fail(err error, emit protocol.Emitter) {
	emit(CommandFailed{Command: ListCommand, Err: err})
}

// fetchCommand downloads a single file into a temporary file next to its
// destination, and renames it into place once every byte has arrived.
type fetchCommand struct {
	fs   afero.Fs
	path string
	dest string

	tracker   *transfer.Tracker
	gotHeader bool
	modTime   time.Time

	tmp afero.File

	// writeErr is the first local error. Once it's set, the remaining chunks
	// are read and discarded.
	writeErr error
}

func newFetchCommand(fs afero.Fs, clock clockwork.Clock, path, dest string) *fetchCommand {
	return &fetchCommand{
		fs:      fs,
		path:    path,
		dest:    dest,
		tracker: transfer.NewTracker(clock),
	}
}

func (c *fetchCommand) Name() string {
	return fmt.Sprintf("%s %s", FetchCommand, c.path)
}

func (c *fetchCommand) Request() wire.Frame {
	return wire.NewFetchRequest(c.path)
}

func (c *fetchCommand) Handle(f wire.Frame, emit protocol.Emitter) (bool, error) {
	if !c.gotHeader {
		return c.handleHeader(f, emit)
	}

	if f.Kind != wire.FetchChunk {
		return false, unexpectedFrame(c, f)
	}

	progress := c.tracker.Progress()
	if progress.Received+int64(len(f.Payload)) > progress.Total {
		return false, errors.ProtocolError{Reason: fmt.Sprintf(
			"received more than the announced %d bytes of %q", progress.Total, c.path)}
	}

	if c.writeErr == nil {
		if _, err := c.tmp.Write(f.Payload); err != nil {
			c.writeErr = errors.IOError{Path: c.dest, Err: err}
			c.removeTemp()
		}
	}

	progress = c.tracker.Add(len(f.Payload))
	c.emitProgress(emit, progress)
	if progress.Done() {
		c.finish(emit)
		return true, nil
	}
	return false, nil
}

func (c *fetchCommand) handleHeader(f wire.Frame, emit protocol.Emitter) (bool, error) {
	if f.Kind != wire.FetchHeader {
		return false, unexpectedFrame(c, f)
	}

	header, err := wire.ParseFetchHeader(f.Payload)
	if err != nil {
		return false, err
	}
	c.gotHeader = true

	if header.NotFound() {
		emit(CommandFailed{
			Command: FetchCommand,
			Path:    c.path,
			Err:     errors.NotFoundError{Path: c.path},
		})
		return true, nil
	}

	c.modTime = header.ModTime
	c.writeErr = c.createTemp()

	progress := c.tracker.Start(header.TotalSize)
	c.emitProgress(emit, progress)
	if progress.Done() {
		c.finish(emit)
		return true, nil
	}
	return false, nil
}

func (c *fetchCommand) createTemp() error {
	dir := filepath.Dir(c.dest)
	if err := c.fs.MkdirAll(dir, 0755); err != nil {
		return errors.IOError{Path: dir, Err: err}
	}

	tmp, err := afero.TempFile(c.fs, dir, sync.TempFilePattern(c.dest))
	if err != nil {
		return errors.IOError{Path: c.dest, Err: err}
	}
	c.tmp = tmp
	return nil
}

// finish moves the completed temp file into place, and stamps it with the
// server's modification time so that it's up to date in the next
// classification.
func (c *fetchCommand) finish(emit protocol.Emitter) {
	if err := c.install(); err != nil {
		c.removeTemp()
		log.WithError(err).WithField("path", c.path).Warn("Failed to save fetched file")
		emit(CommandFailed{Command: FetchCommand, Path: c.path, Err: err})
		return
	}

	log.WithField("path", c.path).Debug("Fetched file")
	emit(FileReceived{Path: c.path})
}

func (c *fetchCommand) install() error {
	if c.writeErr != nil {
		return c.writeErr
	}

	tmpPath := c.tmp.Name()
	if err := c.tmp.Close(); err != nil {
		return errors.IOError{Path: c.dest, Err: err}
	}
	c.tmp = nil

	if err := c.fs.Rename(tmpPath, c.dest); err != nil {
		c.fs.Remove(tmpPath)
		return errors.IOError{Path: c.dest, Err: err}
	}

	if err := c.fs.Chtimes(c.dest, time.Now(), c.modTime); err != nil {
		return errors.IOError{Path: c.dest, Err: err}
	}
	return nil
}

func (c *fetchCommand) Fail(err error, emit protocol.Emitter) {
	c.removeTemp()
	emit(CommandFailed{Command: FetchCommand, Path: c.path, Err: err})
}

func (c *fetchCommand) removeTemp() {
	if c.tmp == nil {
		return
	}

	name := c.tmp.Name()
	c.tmp.Close()
	if err := c.fs.Remove(name); err != nil {
		log.WithError(err).WithField("path", name).Debug("Failed to remove temp file")
	}
	c.tmp = nil
}

func (c *fetchCommand) emitProgress(emit protocol.Emitter, progress transfer.Progress) {
	emit(TransferProgress{
		Path:         c.path,
		TotalSize:    progress.Total,
		ReceivedSize: progress.Received,
		Percent:      progress.Percent,
	})
}

func unexpectedFrame(cmd protocol.Command, f wire.Frame) error {
	return errors.ProtocolError{
		Reason: fmt.Sprintf("unexpected %s frame in response to %s", f.Kind, cmd.Name())}
}
