package archive

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// ActionAdded marks a file that was added to the archive.
const ActionAdded = "A"

// ManifestHeader is the fixed column order of a manifest.
var ManifestHeader = []string{"filename", "md5", "filesize", "action"}

// ManifestRow is one manifest line describing an archived file.
type ManifestRow struct {
	Filename string // root-joined path used during the run
	MD5      string // lowercase hex digest of the archived bytes
	Filesize int64
	Action   string
}

func (r ManifestRow) record() []string {
	return []string{r.Filename, r.MD5, strconv.FormatInt(r.Filesize, 10), r.Action}
}

// ManifestWriter writes manifest rows as CSV. The header is written once,
// when the writer is created.
type ManifestWriter struct {
	w    *csv.Writer
	rows int
}

// NewManifestWriter writes the header row to w and returns a writer for data rows.
func NewManifestWriter(w io.Writer) (*ManifestWriter, error) {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(ManifestHeader); err != nil {
		return nil, fmt.Errorf("writing manifest header: %w", err)
	}
	return &ManifestWriter{w: cw}, nil
}

// Write appends one row.
func (m *ManifestWriter) Write(row ManifestRow) error {
	if err := m.w.Write(row.record()); err != nil {
		return fmt.Errorf("writing manifest row for %s: %w", row.Filename, err)
	}
	m.rows++
	return nil
}

// Rows returns the number of data rows written.
func (m *ManifestWriter) Rows() int {
	return m.rows
}

// Close flushes buffered rows. It does not close the underlying writer.
func (m *ManifestWriter) Close() error {
	m.w.Flush()
	if err := m.w.Error(); err != nil {
		return fmt.Errorf("flushing manifest: %w", err)
	}
	return nil
}

// ReadManifest parses a manifest, validating its header.
func ReadManifest(r io.Reader) ([]ManifestRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(ManifestHeader)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty manifest: %w", ErrManifestHeader)
		}
		return nil, fmt.Errorf("reading manifest header: %w", err)
	}
	if !slices.Equal(header, ManifestHeader) {
		return nil, fmt.Errorf("got %v: %w", header, ErrManifestHeader)
	}

	var rows []ManifestRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading manifest: %w", err)
		}
		size, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing filesize of %s: %w", record[0], err)
		}
		rows = append(rows, ManifestRow{
			Filename: record[0],
			MD5:      record[1],
			Filesize: size,
			Action:   record[3],
		})
	}
	return rows, nil
}
