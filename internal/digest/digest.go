// Package digest computes streaming content checksums.
//
// Files are read in fixed ChunkSize chunks so memory use stays bounded
// regardless of file size. The algorithm is a policy behind the Digester
// interface; MD5 is the default.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// ChunkSize is the read size used when streaming content into a hash.
const ChunkSize = 8 * 1024

// Digester selects the hash algorithm used for checksums.
type Digester interface {
	// Name returns the algorithm name as used in configuration.
	Name() string

	// New returns a fresh hash.
	New() hash.Hash
}

type md5Digester struct{}

func (md5Digester) Name() string   { return "md5" }
func (md5Digester) New() hash.Hash { return md5.New() }

type sha256Digester struct{}

func (sha256Digester) Name() string   { return "sha256" }
func (sha256Digester) New() hash.Hash { return sha256.New() }

type blake3Digester struct{}

func (blake3Digester) Name() string   { return "blake3" }
func (blake3Digester) New() hash.Hash { return blake3.New() }

var (
	MD5    Digester = md5Digester{}
	SHA256 Digester = sha256Digester{}
	BLAKE3 Digester = blake3Digester{}
)

// Default is the digester used when none is configured.
var Default = MD5

// ForName returns the digester for an algorithm name. An empty name selects Default.
func ForName(name string) (Digester, error) {
	switch name {
	case "", "md5":
		return Default, nil
	case "sha256":
		return SHA256, nil
	case "blake3":
		return BLAKE3, nil
	default:
		return nil, fmt.Errorf("unknown digest algorithm: %q", name)
	}
}

// Reader consumes r to EOF and returns the lowercase hex digest and the
// number of bytes read. No digest is returned if reading fails.
func Reader(d Digester, r io.Reader) (string, int64, error) {
	h := d.New()
	buf := make([]byte, ChunkSize)

	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("reading content: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), total, nil
}

// File returns the hex digest and size of the file at path.
func File(d Digester, path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	sum, n, err := Reader(d, f)
	if err != nil {
		return "", 0, fmt.Errorf("digesting %s: %w", path, err)
	}
	return sum, n, nil
}
