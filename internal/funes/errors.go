package funes

import "errors"

var (
	// ErrRootNotFound is returned when the directory to archive does not exist.
	ErrRootNotFound = errors.New("input directory does not exist")

	// ErrRootNotDirectory is returned when the path to archive is not a directory.
	ErrRootNotDirectory = errors.New("input path is not a directory")
)
