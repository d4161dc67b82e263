package funes

import (
	"io"
	"io/fs"
)

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It stats the path and validates it's a regular file or directory
	// (not a device, pipe or socket). The path string is not rewritten.
	Resolve(rawPath string) (*Path, error)

	// Enumerate returns the root-relative, slash-separated paths of every
	// non-hidden regular file under root, sorted lexicographically.
	// Any traversal error fails the whole enumeration.
	Enumerate(root *Path) ([]string, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Stat returns fresh file info for a path without following symlinks.
	Stat(path string) (fs.FileInfo, error)

	// Create creates or truncates a file for writing.
	Create(path string) (io.WriteCloser, error)
}
