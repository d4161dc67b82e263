package model

import (
	"database/sql"
	"time"
)

// Run status values.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
)

// Run represents one snapshot of a root directory.
type Run struct {
	ID           string // UUID
	Root         string // Root directory as supplied by the caller
	ArchivePath  string
	ManifestPath string
	Compression  string // "gzip", "zstd", "lz4" or "none"
	Digest       string // digest algorithm name, e.g. "md5"
	FileCount    int64
	TotalBytes   int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Status       string // one of the RunStatus constants
	Error        string // failure message when Status is RunStatusError
}

// RunFile represents one archived file within a run, mirroring a manifest row.
type RunFile struct {
	RunID        string
	Position     int64  // zero-based archival order
	RelativePath string // archive member name
	Filename     string // root-joined path as written to the manifest
	Checksum     string
	Size         int64
}
