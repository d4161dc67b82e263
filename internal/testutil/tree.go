package testutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// WriteTree creates files under root. Keys are slash-separated relative
// paths; parent directories are created as needed.
func WriteTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", rel, err)
		}
	}
}

// OSSource reads files from the real filesystem.
type OSSource struct{}

func (OSSource) Open(path string) (io.ReadCloser, error) { return os.Open(path) }
func (OSSource) Stat(path string) (fs.FileInfo, error)   { return os.Lstat(path) }
