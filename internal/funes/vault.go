package funes

import "io"

// Vault provides an interface for the storage backends that finished
// snapshots are published to. All operations stream so that archives of any
// size can be uploaded without being loaded into memory.
type Vault interface {
	// Put stores the object read from r under key, replacing any previous
	// object. size is the number of bytes that will be read from r.
	Put(key string, r io.Reader, size int64) error

	// Get retrieves the object stored under key and writes it to w.
	Get(key string, w io.Writer) error

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
