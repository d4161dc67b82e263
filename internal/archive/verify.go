package archive

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"funes/internal/digest"
)

// Mismatch describes one disagreement between an archive and its manifest.
type Mismatch struct {
	Position int    // zero-based manifest row index; archive member index for non-regular members
	Name     string // member name, or manifest filename for surplus rows
	Reason   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("#%d %s: %s", m.Position, m.Name, m.Reason)
}

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	Members    int
	Rows       int
	Mismatches []Mismatch
}

// OK reports whether the archive and manifest agree completely.
func (r *VerifyReport) OK() bool {
	return len(r.Mismatches) == 0 && r.Members == r.Rows
}

// Err returns nil when the report is OK, and otherwise an error wrapping
// ErrParityMismatch that names the first disagreement.
func (r *VerifyReport) Err() error {
	if r.OK() {
		return nil
	}
	if len(r.Mismatches) == 0 {
		return fmt.Errorf("%w: %d members, %d rows", ErrParityMismatch, r.Members, r.Rows)
	}
	return fmt.Errorf("%w: %d problems, first %s", ErrParityMismatch, len(r.Mismatches), r.Mismatches[0])
}

func (r *VerifyReport) add(pos int, name, format string, args ...any) {
	r.Mismatches = append(r.Mismatches, Mismatch{Position: pos, Name: name, Reason: fmt.Sprintf(format, args...)})
}

// Verify reads an archive and its manifest side by side and checks that they
// describe the same files in the same order, and that every member's digest
// and size match its row. Content is only read, never extracted.
//
// An error is returned only when either input cannot be read; disagreements
// are reported in the VerifyReport.
func Verify(archiveR io.Reader, c Compression, manifestR io.Reader, d digest.Digester) (*VerifyReport, error) {
	if d == nil {
		d = digest.Default
	}

	rows, err := ReadManifest(manifestR)
	if err != nil {
		return nil, err
	}

	ar, err := NewReader(archiveR, c)
	if err != nil {
		return nil, err
	}
	defer ar.Close()

	report := &VerifyReport{Rows: len(rows)}
	for i := 0; ; i++ {
		hdr, err := ar.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive member %d: %w", i, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			report.add(i, hdr.Name, "unexpected member type %q", hdr.Typeflag)
			continue
		}
		// Only regular members pair with manifest rows.
		pos := report.Members
		report.Members++

		sum, size, err := digest.Reader(d, ar)
		if err != nil {
			return nil, fmt.Errorf("reading archive member %s: %w", hdr.Name, err)
		}

		if pos >= len(rows) {
			report.add(pos, hdr.Name, "member has no manifest row")
			continue
		}
		row := rows[pos]
		if !rowNames(row, hdr.Name) {
			report.add(pos, hdr.Name, "manifest row names %s", row.Filename)
		}
		if row.MD5 != sum {
			report.add(pos, hdr.Name, "checksum %s, manifest has %s", sum, row.MD5)
		}
		if row.Filesize != size {
			report.add(pos, hdr.Name, "size %d, manifest has %d", size, row.Filesize)
		}
		if row.Action != ActionAdded {
			report.add(pos, hdr.Name, "unexpected action %q", row.Action)
		}
	}

	for i := report.Members; i < len(rows); i++ {
		report.add(i, rows[i].Filename, "manifest row has no archive member")
	}

	return report, nil
}

// rowNames reports whether a manifest filename (root-joined) refers to the
// archive member name (root-relative).
func rowNames(row ManifestRow, member string) bool {
	filename := filepath.ToSlash(row.Filename)
	return filename == member || strings.HasSuffix(filename, "/"+member)
}
