// Package server answers requests from dirsync clients for the files below a
// single root directory.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/cmd/util"
	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/metrics"
	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync"
	"github.com/sidkik/dirsync/pkg/wire"
)

// ChunkSize is the largest FetchChunk payload the server sends.
const ChunkSize = 64 * 1024

// Mocked for unit testing.
var fs = afero.NewOsFs()

type server struct {
	root string
}

// Run serves the files below `root` on `address` until the context is
// cancelled.
func Run(ctx context.Context, address, root string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return errors.WithContext(err, "listen")
	}
	return Serve(ctx, lis, root)
}

// Serve accepts connections from `lis` until the context is cancelled. Each
// connection is handled by its own goroutine. The listener is closed when
// Serve returns.
func Serve(ctx context.Context, lis net.Listener, root string) error {
	fi, err := fs.Stat(root)
	if err != nil {
		lis.Close()
		return errors.IOError{Path: root, Err: err}
	}
	if !fi.IsDir() {
		lis.Close()
		return errors.IOError{Path: root, Err: errors.New("not a directory")}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		lis.Close()
	}()

	s := &server{root: root}
	dispatcher := s.dispatcher()
	log.WithFields(log.Fields{
		"address": lis.Addr().String(),
		"root":    root,
	}).Info("dirsync server is ready")

	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.WithContext(err, "accept")
		}

		go func() {
			defer util.HandlePanic()
			serveConn(conn, dispatcher)
		}()
	}
}

func serveConn(conn net.Conn, dispatcher protocol.Dispatcher) {
	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	logger := log.WithField("client", conn.RemoteAddr().String())
	logger.Info("Client connected")
	if err := protocol.Serve(conn, dispatcher); err != nil {
		logger.WithError(err).Warn("Closed connection")
		return
	}
	logger.Info("Client disconnected")
}

func (s *server) dispatcher() protocol.Dispatcher {
	return protocol.Dispatcher{
		wire.EchoRequest:  protocol.RequestHandlerFunc(s.echo),
		wire.ListRequest:  protocol.RequestHandlerFunc(s.listFiles),
		wire.FetchRequest: protocol.RequestHandlerFunc(s.fetchFile),
	}
}

func (s *server) echo(req wire.Frame, w protocol.ResponseWriter) error {
	metrics.RecordRequest("Echo")
	return w.WriteFrame(wire.NewEchoResponse(string(req.Payload)))
}

// listFiles responds with a snapshot of the root. If the root can't be
// scanned, the client gets an empty listing rather than an error.
func (s *server) listFiles(_ wire.Frame, w protocol.ResponseWriter) error {
	metrics.RecordRequest("ListFiles")

	snapshot, _, err := sync.Scan(fs, s.root)
	if err != nil {
		log.WithError(err).WithField("root", s.root).Warn(
			"Failed to scan root. Responding with an empty listing.")
		snapshot = nil
	}
	metrics.SetListedFiles(len(snapshot))

	resp, err := wire.NewListResponse(snapshot)
	if err != nil {
		return errors.WithContext(err, "encode listing")
	}
	return w.WriteFrame(resp)
}

func (s *server) fetchFile(req wire.Frame, w protocol.ResponseWriter) error {
	metrics.RecordRequest("FetchFile")

	relPath := string(req.Payload)
	logger := log.WithField("path", relPath)

	f, fi, err := s.open(relPath)
	if err != nil {
		logger.WithError(err).Debug("Responding with not found")
		metrics.RecordFetch(metrics.FetchNotFound)
		return writeHeader(w, wire.Header{TotalSize: wire.NotFoundSize})
	}
	defer f.Close()

	if err := writeHeader(w, wire.Header{TotalSize: fi.Size(), ModTime: fi.ModTime()}); err != nil {
		return err
	}

	if err := streamContents(f, fi.Size(), w); err != nil {
		metrics.RecordFetch(metrics.FetchError)
		return errors.WithContext(err, fmt.Sprintf("stream %q", relPath))
	}

	logger.WithField("size", fi.Size()).Debug("Sent file")
	metrics.RecordFetch(metrics.FetchSent)
	return nil
}

// open opens the regular file at `relPath` within the root. Directories,
// symlinks and paths outside the root are treated as missing.
func (s *server) open(relPath string) (afero.File, os.FileInfo, error) {
	path, err := sync.LocalPath(s.root, relPath)
	if err != nil {
		return nil, nil, err
	}

	var fi os.FileInfo
	if lstater, ok := fs.(afero.Lstater); ok {
		fi, _, err = lstater.LstatIfPossible(path)
	} else {
		fi, err = fs.Stat(path)
	}
	if err != nil {
		return nil, nil, err
	}

	if !fi.Mode().IsRegular() {
		return nil, nil, errors.New("not a regular file")
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, fi, nil
}

func writeHeader(w protocol.ResponseWriter, h wire.Header) error {
	f, err := wire.NewFetchHeader(h)
	if err != nil {
		return errors.WithContext(err, "encode header")
	}
	return w.WriteFrame(f)
}

// streamContents sends exactly `size` bytes of `r`. It fails if the file
// has fewer bytes than announced, since the client would otherwise wait
// forever for the rest.
func streamContents(r io.Reader, size int64, w protocol.ResponseWriter) error {
	r = io.LimitReader(r, size)
	buf := make([]byte, ChunkSize)
	for remaining := size; remaining > 0; {
		n, err := io.ReadFull(r, buf[:min(remaining, ChunkSize)])
		if err != nil {
			return errors.WithContext(err, "file shrank during transfer")
		}

		if err := w.WriteFrame(wire.NewFetchChunk(buf[:n])); err != nil {
			return err
		}
		metrics.RecordBytesSent(n)
		remaining -= int64(n)
	}
	return nil
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
