package archive

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"

	"funes/internal/digest"
)

// Source opens the files being archived.
type Source interface {
	Open(path string) (io.ReadCloser, error)
	Stat(path string) (fs.FileInfo, error)
}

// Observer is notified after each entry has been written to both the
// archive and the manifest.
type Observer interface {
	EntryAdded(entry string, row ManifestRow)
}

// NopObserver ignores all notifications.
type NopObserver struct{}

func (NopObserver) EntryAdded(string, ManifestRow) {}

// BuildOptions configures Build. Zero values select digest.Default and NopObserver.
type BuildOptions struct {
	Digester digest.Digester
	Observer Observer
}

// Build archives entries, which are slash-separated paths relative to root,
// in order. For each entry the file is read exactly once: its bytes are
// streamed into the archive member and the digest together, so the manifest
// row always describes the bytes that were archived. The row is written
// after the member, keeping the manifest and archive in lockstep.
//
// Build stops at the first error and returns the number of entries fully
// processed. Output written before the failure is left in place.
func Build(src Source, root string, entries []string, aw *Writer, mw *ManifestWriter, opts BuildOptions) (int, error) {
	d := opts.Digester
	if d == nil {
		d = digest.Default
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}

	for i, entry := range entries {
		row, err := addEntry(src, root, entry, aw, d)
		if err != nil {
			return i, fmt.Errorf("archiving %s: %w", entry, err)
		}
		if err := mw.Write(row); err != nil {
			return i, err
		}
		obs.EntryAdded(entry, row)
	}
	return len(entries), nil
}

func addEntry(src Source, root, entry string, aw *Writer, d digest.Digester) (ManifestRow, error) {
	path := filepath.Join(root, filepath.FromSlash(entry))

	info, err := src.Stat(path)
	if err != nil {
		return ManifestRow{}, fmt.Errorf("stat: %w", err)
	}
	if !info.Mode().IsRegular() {
		return ManifestRow{}, ErrNotRegular
	}

	f, err := src.Open(path)
	if err != nil {
		return ManifestRow{}, fmt.Errorf("opening: %w", err)
	}
	defer f.Close()

	h := d.New()
	n, err := aw.Add(entry, info, io.TeeReader(f, h))
	if err != nil {
		return ManifestRow{}, err
	}

	return ManifestRow{
		Filename: path,
		MD5:      hex.EncodeToString(h.Sum(nil)),
		Filesize: n,
		Action:   ActionAdded,
	}, nil
}
