// Package fswatch notifies the client when its local root changes, so that
// the classification can be refreshed.
package fswatch

import (
	"fmt"
	"os"

	"github.com/kelda-inc/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
	"github.com/sidkik/dirsync/pkg/sync"
)

var fs = afero.NewOsFs()

// Watch watches every directory below `root`. It sends an event on the
// returned channel whenever something within the root changes. Bursts of
// changes are coalesced into a single event.
func Watch(root string) (chan struct{}, error) {
	pathsToWatch, err := getPathsToWatch(root)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	go func() {
		for err := range watcher.Errors {
			log.WithError(err).Debug("File watcher error")
		}
	}()
	return combineUpdates(watcher.Events, watcher.Add), nil
}

// combineUpdates coalesces `updates`. New directories are passed to `watch`
// since fsnotify doesn't watch recursively.
func combineUpdates(updates <-chan fsnotify.Event, watch func(string) error) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for update := range updates {
			if sync.IsTempFile(update.Name) {
				continue
			}

			if update.Op&fsnotify.Create != 0 {
				watchNewDir(update.Name, watch)
			}

			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

func watchNewDir(path string, watch func(string) error) {
	fi, err := fs.Stat(path)
	if err != nil || !fi.IsDir() {
		return
	}

	subdirs, err := getPathsToWatch(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("Failed to list new directory")
		return
	}

	for _, dir := range subdirs {
		if err := watch(dir); err != nil {
			log.WithError(err).WithField("path", dir).Warn("Failed to watch directory")
		}
	}
}

// getPathsToWatch returns `root` and all the directories below it. Watching a
// directory reports changes to the files directly within it.
func getPathsToWatch(root string) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, errors.New(fmt.Sprintf("%q is not a directory", root))
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
