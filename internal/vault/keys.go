package vault

import (
	"errors"
	"fmt"
	"strings"
)

// ErrObjectNotFound is returned by Get when no object is stored under a key.
var ErrObjectNotFound = errors.New("object not found")

// validateKey rejects keys that could escape the vault root.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") {
		return fmt.Errorf("object key must be relative: %s", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid object key: %s", key)
		}
	}
	return nil
}
