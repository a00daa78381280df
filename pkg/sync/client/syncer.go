package client

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/protocol"
	"github.com/sidkik/dirsync/pkg/sync"
)

// Result summarizes a full sync.
type Result struct {
	// Fetched are the paths that were downloaded, in the order they
	// completed.
	Fetched []string

	// Failed maps the paths that couldn't be downloaded to the reason.
	Failed map[string]error

	// Skipped are the local paths that couldn't be scanned during the last
	// classification. Files below them are treated as missing.
	Skipped []error

	// Tree is the classification after the sync.
	Tree *sync.Tree
}

// Syncer runs full syncs over a connected Client. While a sync is running,
// it's the only consumer of the client's events.
type Syncer struct {
	client *Client

	// OnEvent, if set, is called with every event received during a sync.
	OnEvent func(protocol.Event)
}

// NewSyncer returns a Syncer that uses `client`.
func NewSyncer(client *Client) *Syncer {
	return &Syncer{client: client}
}

// Sync lists the server's files, fetches every file that's missing or stale
// locally, and lists again to classify the result. Individual fetch failures
// are recorded in the result. An error is only returned if the sync couldn't
// run to completion, for example because the connection was lost.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	result := Result{Failed: map[string]error{}}

	tree, _, err := s.list(ctx)
	if err != nil {
		return result, err
	}

	stale := tree.FindStale()
	log.WithField("count", len(stale)).Info("Fetching stale files")
	requested := 0
	for _, path := range stale {
		err := s.client.RequestFile(path)
		switch {
		case err == nil:
			requested++
		case errors.Is(err, errors.ErrNotConnected):
			return result, errors.WithContext(err, "request file")
		default:
			log.WithError(err).WithField("path", path).Warn("Skipping invalid path")
			result.Failed[path] = err
		}
	}

	for remaining := requested; remaining > 0; {
		ev, err := s.next(ctx)
		if err != nil {
			return result, err
		}

		switch ev := ev.(type) {
		case FileReceived:
			result.Fetched = append(result.Fetched, ev.Path)
			remaining--
		case CommandFailed:
			if ev.Command == FetchCommand {
				log.WithError(ev.Err).WithField("path", ev.Path).Warn("Failed to fetch file")
				result.Failed[ev.Path] = ev.Err
				remaining--
			}
		}
	}

	result.Tree, result.Skipped, err = s.list(ctx)
	return result, err
}

func (s *Syncer) list(ctx context.Context) (*sync.Tree, []error, error) {
	if err := s.client.RequestFileList(); err != nil {
		return nil, nil, errors.WithContext(err, "request file list")
	}

	for {
		ev, err := s.next(ctx)
		if err != nil {
			return nil, nil, err
		}

		switch ev := ev.(type) {
		case FilesListReceived:
			return s.client.classify(ev.Snapshot)
		case CommandFailed:
			if ev.Command == ListCommand {
				return nil, nil, errors.WithContext(ev.Err, "list files")
			}
		}
	}
}

// next returns the next event. Losing the connection is an error.
func (s *Syncer) next(ctx context.Context) (protocol.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-s.client.Events():
		if !ok {
			return nil, errors.ErrDisconnected
		}

		if s.OnEvent != nil {
			s.OnEvent(ev)
		}

		if cc, ok := ev.(ConnectivityChanged); ok && !cc.Connected {
			if cc.Err != nil {
				return nil, cc.Err
			}
			return nil, errors.ErrDisconnected
		}
		return ev, nil
	}
}
