package funes

import "io/fs"

// Path represents a validated filesystem path with cached metadata.
// Path objects are created by FilesystemManager.Resolve(), which validates
// the path exists and caches its stat info. The path string is kept exactly
// as supplied so that manifest rows reproduce the caller's root.
type Path struct {
	path  string
	isDir bool
	info  fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(path string, isDir bool, info fs.FileInfo) *Path {
	return &Path{
		path:  path,
		isDir: isDir,
		info:  info,
	}
}

// String returns the path as it was resolved.
func (p *Path) String() string {
	return p.path
}

// IsDir returns true if this path points to a directory.
func (p *Path) IsDir() bool {
	return p.isDir
}

// Info returns the cached file info from when the path was resolved.
func (p *Path) Info() fs.FileInfo {
	return p.info
}
