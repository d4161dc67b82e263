package archive

import "errors"

var (
	// ErrFileChanged is returned when a file's length differs from its stat
	// size while it is being archived.
	ErrFileChanged = errors.New("file changed while being archived")

	// ErrNotRegular is returned when an enumerated entry is no longer a regular file.
	ErrNotRegular = errors.New("not a regular file")

	// ErrManifestHeader is returned when a manifest does not start with the
	// expected header row.
	ErrManifestHeader = errors.New("invalid manifest header")

	// ErrParityMismatch is returned by VerifyReport.Err when an archive and
	// its manifest disagree.
	ErrParityMismatch = errors.New("archive and manifest disagree")
)
