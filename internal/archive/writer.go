package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"funes/internal/digest"
)

// Writer appends files to a compressed tar stream.
// Members are written in the order Add is called.
type Writer struct {
	comp   io.WriteCloser
	tw     *tar.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer that compresses with c and writes to w.
// The caller owns w; Close finalizes the archive but does not close w.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	comp, err := newCompressor(w, c)
	if err != nil {
		return nil, err
	}
	return &Writer{
		comp: comp,
		tw:   tar.NewWriter(comp),
		buf:  make([]byte, digest.ChunkSize),
	}, nil
}

// Add writes one member named name whose header is derived from info and
// whose content is read from r. Exactly info.Size() bytes are copied;
// if r yields fewer or more, ErrFileChanged is returned.
// Returns the number of content bytes written.
func (w *Writer) Add(name string, info fs.FileInfo, r io.Reader) (int64, error) {
	if w.closed {
		return 0, errors.New("archive writer is closed")
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s: %w", name, ErrNotRegular)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, fmt.Errorf("building header for %s: %w", name, err)
	}
	hdr.Name = name
	hdr.Format = tar.FormatPAX

	if err := w.tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("writing header for %s: %w", name, err)
	}

	n, err := io.CopyBuffer(w.tw, io.LimitReader(r, hdr.Size), w.buf)
	if err != nil {
		return n, fmt.Errorf("writing content for %s: %w", name, err)
	}
	if n != hdr.Size {
		return n, fmt.Errorf("%s: expected %d bytes, read %d: %w", name, hdr.Size, n, ErrFileChanged)
	}

	// The source must be exhausted, otherwise it grew after the stat.
	var next [1]byte
	if extra, _ := r.Read(next[:]); extra > 0 {
		return n, fmt.Errorf("%s: grew beyond %d bytes: %w", name, hdr.Size, ErrFileChanged)
	}

	return n, nil
}

// Close writes the tar trailer and flushes the compressed stream.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.tw.Close(); err != nil {
		w.comp.Close()
		return fmt.Errorf("finalizing tar stream: %w", err)
	}
	if err := w.comp.Close(); err != nil {
		return fmt.Errorf("finalizing compressed stream: %w", err)
	}
	return nil
}

// Reader iterates the members of a compressed tar stream.
type Reader struct {
	decomp io.ReadCloser
	tr     *tar.Reader
}

// NewReader opens a compressed tar stream read from r.
// An empty c detects the compression from the stream's magic number.
func NewReader(r io.Reader, c Compression) (*Reader, error) {
	if c == "" {
		br := bufio.NewReader(r)
		detected, err := DetectCompression(br)
		if err != nil {
			return nil, err
		}
		r, c = br, detected
	}
	decomp, err := newDecompressor(r, c)
	if err != nil {
		return nil, err
	}
	return &Reader{decomp: decomp, tr: tar.NewReader(decomp)}, nil
}

// Next advances to the next member. It returns io.EOF at the end of the archive.
func (r *Reader) Next() (*tar.Header, error) {
	return r.tr.Next()
}

// Read reads from the current member.
func (r *Reader) Read(p []byte) (int, error) {
	return r.tr.Read(p)
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	return r.decomp.Close()
}
