package sync

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sidkik/dirsync/pkg/errors"
)

// FileInfo describes a single file within a sync root.
type FileInfo struct {
	// Path is the slash separated path of the file relative to the sync root.
	// It's unique within a snapshot.
	Path string

	// Size is the size of the file in bytes.
	Size int64

	// ModTime is the time of the last file modification.
	ModTime time.Time
}

// Equal returns whether the two files describe the same path. It doesn't
// compare contents.
func (f FileInfo) Equal(other FileInfo) bool {
	return f.Path == other.Path
}

// UpToDate returns whether `other` is an exact copy of `f`, i.e. whether a
// fetch is unnecessary. Modification times are compared to the nanosecond.
func (f FileInfo) UpToDate(other FileInfo) bool {
	return f.Equal(other) &&
		f.Size == other.Size &&
		f.ModTime.Equal(other.ModTime)
}

func (f FileInfo) String() string {
	return fmt.Sprintf("%s (%d bytes, %s)", f.Path, f.Size, f.ModTime.Format(time.RFC3339))
}

// NormalizePath converts a path relative to a sync root into the slash
// separated form used on the wire. It fails if the path is absolute or
// escapes the root.
func NormalizePath(relPath string) (string, error) {
	slashed := filepath.ToSlash(relPath)
	if path.IsAbs(slashed) || filepath.IsAbs(relPath) {
		return "", errors.New(fmt.Sprintf("%q is absolute", relPath))
	}

	cleaned := path.Clean(slashed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New(fmt.Sprintf("%q is outside the sync root", relPath))
	}
	return cleaned, nil
}

// LocalPath returns the host path for the wire path `relPath` within `root`.
func LocalPath(root, relPath string) (string, error) {
	normalized, err := NormalizePath(relPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(normalized)), nil
}

// SplitPath splits a wire path into its segments. Empty segments caused by
// leading, trailing or repeated slashes are dropped.
func SplitPath(p string) []string {
	var segments []string
	for _, segment := range strings.Split(p, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// tempFileMarker is part of the name of every temporary file created while a
// fetch is in progress.
const tempFileMarker = ".dirsync-"

// TempFilePattern returns the afero.TempFile pattern for a partial download
// of `dest`.
func TempFilePattern(dest string) string {
	return "." + filepath.Base(dest) + tempFileMarker
}

// IsTempFile returns whether `p` names a partial download.
func IsTempFile(p string) bool {
	base := filepath.Base(p)
	return strings.HasPrefix(base, ".") && strings.Contains(base, tempFileMarker)
}
