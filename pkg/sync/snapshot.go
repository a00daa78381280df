package sync

import (
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/dirsync/pkg/errors"
)

// Snapshot is an ordered listing of the files in a sync root at a point in
// time. Snapshots are never modified once they're published. A resync
// produces a new snapshot.
type Snapshot []FileInfo

// Find returns the first file in the snapshot with the given path.
func (snapshot Snapshot) Find(p string) (FileInfo, bool) {
	for _, f := range snapshot {
		if f.Path == p {
			return f, true
		}
	}
	return FileInfo{}, false
}

// Index returns the files in the snapshot keyed by path. If a path appears
// more than once, the first entry wins, matching Find.
func (snapshot Snapshot) Index() map[string]FileInfo {
	index := make(map[string]FileInfo, len(snapshot))
	for _, f := range snapshot {
		if _, ok := index[f.Path]; !ok {
			index[f.Path] = f
		}
	}
	return index
}

// TotalSize returns the sum of the sizes of the files in the snapshot.
func (snapshot Snapshot) TotalSize() (total int64) {
	for _, f := range snapshot {
		total += f.Size
	}
	return total
}

// Scan returns a snapshot of every regular file below `root`, sorted by path.
// Symlinks aren't followed. Only an unreadable root fails the scan. Paths
// below it that can't be read are left out of the snapshot, and returned as
// IOErrors in `skipped`.
func Scan(fs afero.Fs, root string) (snapshot Snapshot, skipped []error, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		return nil, nil, errors.IOError{Path: root, Err: err}
	}

	if !fi.IsDir() {
		return nil, nil, errors.IOError{Path: root, Err: errors.New("not a directory")}
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			ioErr := errors.IOError{Path: path, Err: err}
			if path == root {
				return ioErr
			}

			log.WithError(err).WithField("path", path).Warn("Skipping unreadable path")
			skipped = append(skipped, ioErr)
			return nil
		}

		if fi.IsDir() || !fi.Mode().IsRegular() {
			return nil
		}

		// This can't fail because `path` is always a child of `root`.
		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			return errors.WithContext(err, "normalized path")
		}

		snapshot = append(snapshot, FileInfo{
			Path:    filepath.ToSlash(relativePath),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Path < snapshot[j].Path
	})
	return snapshot, skipped, nil
}
