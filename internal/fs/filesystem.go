package fs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"funes/internal/funes"
)

// HiddenPrefix marks hidden files. Files whose name starts with it are never enumerated.
const HiddenPrefix = "."

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	ignore     []string
	ignoreFile bool
}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
// ignore holds exclusion patterns applied by Enumerate. When ignoreFile is
// set, patterns from each root's .funesignore are applied as well. With no
// patterns and ignoreFile unset every non-hidden regular file is enumerated.
func NewOSFilesystemManager(ignore []string, ignoreFile bool) *OSFilesystemManager {
	return &OSFilesystemManager{ignore: ignore, ignoreFile: ignoreFile}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*funes.Path, error) {
	info, err := os.Stat(rawPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", rawPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", rawPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", rawPath)
	}

	return funes.NewPath(rawPath, info.IsDir(), info), nil
}

// Enumerate walks root and returns the slash-separated relative paths of all
// regular files whose name is not hidden and that no ignore pattern matches,
// sorted lexicographically. A symlinked root is followed; symlinks, devices,
// pipes and sockets below it are skipped. Only a file's own name decides
// whether it is hidden, so files inside hidden directories are included.
func (m *OSFilesystemManager) Enumerate(root *funes.Path) ([]string, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	// WalkDir does not follow a symlinked root.
	walkRoot, err := filepath.EvalSymlinks(root.String())
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	patterns := slices.Clone(m.ignore)
	if m.ignoreFile {
		filePatterns, err := ParseIgnoreFile(filepath.Join(walkRoot, IgnoreFileName))
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
	}
	matcher := NewIgnoreMatcher(patterns)

	var entries []string
	err = filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || IsHidden(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(walkRoot, p)
		if err != nil {
			return fmt.Errorf("calculating relative path: %w", err)
		}
		rel = filepath.ToSlash(rel)
		if matcher.Match(rel) {
			return nil
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	slices.Sort(entries)
	return entries, nil
}

// IsHidden reports whether a file name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, HiddenPrefix)
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Stat returns fresh file info for a path without following symlinks.
func (m *OSFilesystemManager) Stat(path string) (fs.FileInfo, error) {
	return os.Lstat(path)
}

// Create creates or truncates a file for writing.
func (m *OSFilesystemManager) Create(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// Compile-time check that OSFilesystemManager implements funes.FilesystemManager interface
var _ funes.FilesystemManager = (*OSFilesystemManager)(nil)
