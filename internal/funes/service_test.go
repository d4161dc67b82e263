package funes_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funes/internal/archive"
	"funes/internal/digest"
	funesfs "funes/internal/fs"
	"funes/internal/funes"
	"funes/internal/model"
	"funes/internal/testutil"
	"funes/internal/vault"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger captures log calls for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) log(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.log("DEBUG", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.log("INFO", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.log("WARN", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.log("ERROR", msg, args) }

func (l *recordingLogger) count(msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.msg == msg {
			n++
		}
	}
	return n
}

// osService returns a service over the real filesystem with no database or vault.
func osService(opts funes.SnapshotOptions) *funes.SnapshotService {
	return funes.NewSnapshotService(funesfs.NewOSFilesystemManager(nil, false), nil, nil, nil, testutil.FixedClock(), testutil.NewStubIDGenerator(), opts)
}

func memberNames(t *testing.T, archivePath string, c archive.Compression) map[string]string {
	t.Helper()
	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	r, err := archive.NewReader(f, c)
	require.NoError(t, err)
	defer r.Close()

	members := map[string]string{}
	for {
		hdr, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		members[hdr.Name] = string(data)
	}
	return members
}

func TestSnapshotService_Snapshot_singleVisibleFile(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.txt": "hello", ".hidden": "x"})
	out := t.TempDir()
	archivePath := filepath.Join(out, "out.tar.gz")
	manifestPath := filepath.Join(out, "out.csv")

	result, err := osService(funes.SnapshotOptions{}).Snapshot(root, archivePath, manifestPath)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FileCount)
	assert.EqualValues(t, 5, result.TotalBytes)

	assert.Equal(t, map[string]string{"a.txt": "hello"}, memberNames(t, archivePath, archive.CompressionGzip))

	manifest, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	want := "filename,md5,filesize,action\r\n" +
		filepath.Join(root, "a.txt") + ",5d41402abc4b2a76b9719d911017c592,5,A\r\n"
	assert.Equal(t, want, string(manifest))
	assert.NotContains(t, string(manifest), ".hidden")
}

func TestSnapshotService_Snapshot_emptyRoot(t *testing.T) {
	root := t.TempDir()
	out := t.TempDir()
	archivePath := filepath.Join(out, "out.tar.gz")
	manifestPath := filepath.Join(out, "out.csv")

	result, err := osService(funes.SnapshotOptions{}).Snapshot(root, archivePath, manifestPath)
	require.NoError(t, err)
	assert.Zero(t, result.FileCount)

	assert.Empty(t, memberNames(t, archivePath, archive.CompressionGzip))
	manifest, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, "filename,md5,filesize,action\r\n", string(manifest))
}

func TestSnapshotService_Snapshot_preconditions(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		name    string
		root    string
		wantErr error
	}{
		{"root does not exist", filepath.Join(t.TempDir(), "missing"), funes.ErrRootNotFound},
		{"root is a file", file, funes.ErrRootNotDirectory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			archivePath := filepath.Join(out, "out.tar.gz")
			manifestPath := filepath.Join(out, "out.csv")

			_, err := osService(funes.SnapshotOptions{}).Snapshot(tt.root, archivePath, manifestPath)
			require.ErrorIs(t, err, tt.wantErr)

			_, statErr := os.Stat(archivePath)
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "archive must not be created")
			_, statErr = os.Stat(manifestPath)
			assert.True(t, errors.Is(statErr, os.ErrNotExist), "manifest must not be created")
		})
	}
}

func TestSnapshotService_Snapshot_completenessAndParity(t *testing.T) {
	root := t.TempDir()
	tree := map[string]string{
		"a.txt":           "alpha",
		"b/c.txt":         "charlie",
		"b/d/e.bin":       strings.Repeat("\x00\x01\x02", 10000),
		"b/.secret":       "hidden",
		".secret":         "hidden",
		".config/visible": "in a hidden dir",
		"z.txt":           "",
	}
	testutil.WriteTree(t, root, tree)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty", "nested"), 0755))

	for _, c := range []archive.Compression{archive.CompressionGzip, archive.CompressionZstd, archive.CompressionLZ4, archive.CompressionNone} {
		t.Run(c.String(), func(t *testing.T) {
			out := t.TempDir()
			archivePath := filepath.Join(out, "out"+c.Extension())
			manifestPath := filepath.Join(out, "out.csv")

			result, err := osService(funes.SnapshotOptions{Compression: c}).Snapshot(root, archivePath, manifestPath)
			require.NoError(t, err)

			want := map[string]string{}
			for rel, content := range tree {
				if !strings.HasPrefix(filepath.Base(rel), ".") {
					want[rel] = content
				}
			}
			assert.Equal(t, want, memberNames(t, archivePath, c))
			assert.Equal(t, len(want), result.FileCount)

			af, err := os.Open(archivePath)
			require.NoError(t, err)
			defer af.Close()
			mf, err := os.Open(manifestPath)
			require.NoError(t, err)
			defer mf.Close()

			report, err := archive.Verify(af, c, mf, digest.MD5)
			require.NoError(t, err)
			assert.NoError(t, report.Err())
			assert.Equal(t, report.Members, report.Rows)

			rows := make([]string, len(result.Rows))
			for i, row := range result.Rows {
				rows[i] = row.Filename
			}
			assert.True(t, sort.StringsAreSorted(rows), "rows in lexicographic order: %v", rows)
		})
	}
}

func TestSnapshotService_Snapshot_rerunIsStable(t *testing.T) {
	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.txt": "one", "sub/b.txt": "two"})
	out := t.TempDir()
	archivePath := filepath.Join(out, "out.tar.gz")
	manifestPath := filepath.Join(out, "out.csv")

	svc := osService(funes.SnapshotOptions{})
	var manifests []string
	for range 2 {
		_, err := svc.Snapshot(root, archivePath, manifestPath)
		require.NoError(t, err)

		data, err := os.ReadFile(manifestPath)
		require.NoError(t, err)
		manifests = append(manifests, string(data))
		assert.Equal(t, map[string]string{"a.txt": "one", "sub/b.txt": "two"}, memberNames(t, archivePath, archive.CompressionGzip))
	}
	assert.Equal(t, manifests[0], manifests[1])
}

func TestSnapshotService_Snapshot_digester(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	fsmgr.AddDirectory("/data")
	fsmgr.AddFile("/data/a.txt", []byte("hello"))

	svc := funes.NewSnapshotService(fsmgr, nil, nil, nil, nil, nil, funes.SnapshotOptions{Digester: digest.SHA256})
	result, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, testutil.SHA256Hex([]byte("hello")), result.Rows[0].MD5)
}

func TestSnapshotService_Snapshot_logsEachFile(t *testing.T) {
	fsmgr := testutil.NewMockFilesystemManager()
	fsmgr.AddDirectory("/data")
	fsmgr.AddFile("/data/a.txt", []byte("a"))
	fsmgr.AddFile("/data/b.txt", []byte("b"))
	logger := &recordingLogger{}

	svc := funes.NewSnapshotService(fsmgr, nil, nil, logger, testutil.FixedClock(), testutil.NewStubIDGenerator(), funes.SnapshotOptions{})
	_, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
	require.NoError(t, err)

	assert.Equal(t, 2, logger.count("adding file"))
	assert.Equal(t, 1, logger.count("creating archive"))
	assert.Equal(t, 1, logger.count("archive created"))
}

func TestSnapshotService_Snapshot_recordsRun(t *testing.T) {
	t.Run("successful run", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("hello"))
		fsmgr.AddFile("/data/sub/b.txt", []byte("world!"))
		clock := testutil.FixedClock()

		svc := funes.NewSnapshotService(fsmgr, db, nil, nil, clock, testutil.NewStubIDGenerator(), funes.SnapshotOptions{})
		result, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
		require.NoError(t, err)
		assert.Equal(t, "id-1", result.RunID)

		run, files, err := svc.GetRun(result.RunID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusSuccess, run.Status)
		assert.Equal(t, "/data", run.Root)
		assert.Equal(t, "gzip", run.Compression)
		assert.Equal(t, "md5", run.Digest)
		assert.EqualValues(t, 2, run.FileCount)
		assert.EqualValues(t, 11, run.TotalBytes)
		assert.True(t, run.StartedAt.Equal(clock.Now()))
		assert.True(t, run.FinishedAt.Valid)

		require.Len(t, files, 2)
		assert.Equal(t, "a.txt", files[0].RelativePath)
		assert.Equal(t, "sub/b.txt", files[1].RelativePath)
		assert.Equal(t, "/data/sub/b.txt", files[1].Filename)
		assert.Equal(t, testutil.MD5Hex([]byte("world!")), files[1].Checksum)
	})

	t.Run("failed run keeps partial output", func(t *testing.T) {
		db := testutil.NewTestDatabase(t)
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("hello"))
		fsmgr.AddFile("/data/b.txt", []byte("world"))
		fsmgr.SetOpenError("/data/b.txt", os.ErrPermission)
		logger := &recordingLogger{}

		svc := funes.NewSnapshotService(fsmgr, db, nil, logger, testutil.FixedClock(), testutil.NewStubIDGenerator(), funes.SnapshotOptions{})
		_, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
		require.ErrorIs(t, err, os.ErrPermission)
		assert.Equal(t, 1, logger.count("snapshot failed"))

		run, files, err := svc.GetRun("id-1")
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusError, run.Status)
		assert.Contains(t, run.Error, "b.txt")
		require.Len(t, files, 1)

		manifest, ok := fsmgr.Contents("/out/a.csv")
		require.True(t, ok)
		rows, err := archive.ReadManifest(bytes.NewReader(manifest))
		require.NoError(t, err)
		assert.Len(t, rows, 1)
	})

	t.Run("file changed while archiving", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("hello"))
		fsmgr.SetStatSize("/data/a.txt", 3)

		svc := funes.NewSnapshotService(fsmgr, testutil.NewTestDatabase(t), nil, nil, nil, nil, funes.SnapshotOptions{})
		_, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
		assert.ErrorIs(t, err, archive.ErrFileChanged)
	})
}

func TestSnapshotService_Publish(t *testing.T) {
	setup := func(t *testing.T, withDB bool) (*funes.SnapshotService, *testutil.MockFilesystemManager, *funes.Result) {
		t.Helper()
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("hello"))

		var db funes.Database
		if withDB {
			db = testutil.NewTestDatabase(t)
		}
		svc := funes.NewSnapshotService(fsmgr, db, testutil.NewTestVault(), nil, testutil.FixedClock(), testutil.NewStubIDGenerator(), funes.SnapshotOptions{})
		result, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
		require.NoError(t, err)
		return svc, fsmgr, result
	}

	t.Run("uploads outputs and history", func(t *testing.T) {
		mv := testutil.NewTestVault()
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("hello"))
		svc := funes.NewSnapshotService(fsmgr, testutil.NewTestDatabase(t), mv, nil, testutil.FixedClock(), testutil.NewStubIDGenerator(), funes.SnapshotOptions{})

		result, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
		require.NoError(t, err)
		require.NoError(t, svc.Publish("host-1", result, "/out/a.tar.gz", "/out/a.csv"))

		assert.Equal(t, []string{"host-1/history.db", "host-1/id-1/a.csv", "host-1/id-1/a.tar.gz"}, mv.Keys())

		var manifest bytes.Buffer
		require.NoError(t, mv.Get("host-1/id-1/a.csv", &manifest))
		local, _ := fsmgr.Contents("/out/a.csv")
		assert.Equal(t, string(local), manifest.String())
	})

	t.Run("without database skips history", func(t *testing.T) {
		svc, _, result := setup(t, false)
		require.NoError(t, svc.Publish("host-1", result, "/out/a.tar.gz", "/out/a.csv"))
	})

	t.Run("no vault configured", func(t *testing.T) {
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddDirectory("/data")
		svc := funes.NewSnapshotService(fsmgr, nil, nil, nil, nil, nil, funes.SnapshotOptions{})
		result, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
		require.NoError(t, err)

		assert.ErrorIs(t, svc.Publish("host-1", result, "/out/a.tar.gz", "/out/a.csv"), funes.ErrNoVault)
		assert.ErrorIs(t, svc.ValidateVault(), funes.ErrNoVault)
	})

	t.Run("missing output", func(t *testing.T) {
		svc, _, result := setup(t, true)
		assert.Error(t, svc.Publish("host-1", result, "/out/gone.tar.gz", "/out/a.csv"))
	})
}

func TestSnapshotService_Fetch(t *testing.T) {
	setup := func(t *testing.T, publish bool) (*funes.SnapshotService, *testutil.MockFilesystemManager, *funes.Result) {
		t.Helper()
		fsmgr := testutil.NewMockFilesystemManager()
		fsmgr.AddDirectory("/data")
		fsmgr.AddFile("/data/a.txt", []byte("hello"))
		svc := funes.NewSnapshotService(fsmgr, testutil.NewTestDatabase(t), testutil.NewTestVault(), nil, testutil.FixedClock(), testutil.NewStubIDGenerator(), funes.SnapshotOptions{})

		result, err := svc.Snapshot("/data", "/out/a.tar.gz", "/out/a.csv")
		require.NoError(t, err)
		if publish {
			require.NoError(t, svc.Publish("host-1", result, "/out/a.tar.gz", "/out/a.csv"))
		}
		return svc, fsmgr, result
	}

	t.Run("downloads published outputs", func(t *testing.T) {
		svc, fsmgr, result := setup(t, true)

		paths, err := svc.Fetch("host-1", result.RunID, "/restore")
		require.NoError(t, err)
		assert.Equal(t, []string{"/restore/a.tar.gz", "/restore/a.csv"}, paths)

		for _, name := range []string{"a.tar.gz", "a.csv"} {
			want, _ := fsmgr.Contents("/out/" + name)
			got, ok := fsmgr.Contents("/restore/" + name)
			require.True(t, ok, name)
			assert.Equal(t, want, got, name)
		}
	})

	t.Run("unpublished run", func(t *testing.T) {
		svc, _, result := setup(t, false)

		_, err := svc.Fetch("host-1", result.RunID, "/restore")
		assert.ErrorIs(t, err, vault.ErrObjectNotFound)
	})

	t.Run("unknown run", func(t *testing.T) {
		svc, _, _ := setup(t, true)

		_, err := svc.Fetch("host-1", "no-such-run", "/restore")
		assert.ErrorIs(t, err, funes.ErrRunNotFound)
	})

	t.Run("no vault configured", func(t *testing.T) {
		svc := funes.NewSnapshotService(testutil.NewMockFilesystemManager(), nil, nil, nil, nil, nil, funes.SnapshotOptions{})

		_, err := svc.Fetch("host-1", "id-1", "/restore")
		assert.ErrorIs(t, err, funes.ErrNoVault)
	})
}

func TestSnapshotService_Snapshot_compressionFollowsArchiveName(t *testing.T) {
	tests := []struct {
		archive string
		opts    funes.SnapshotOptions
		want    archive.Compression
	}{
		{archive: "out.tar.gz", want: archive.CompressionGzip},
		{archive: "out.tgz", want: archive.CompressionGzip},
		{archive: "out.tar.zst", want: archive.CompressionZstd},
		{archive: "out.tar.lz4", want: archive.CompressionLZ4},
		{archive: "out.tar", want: archive.CompressionNone},
		{archive: "out.bin", want: archive.CompressionGzip},
		{archive: "out.tar.zst", opts: funes.SnapshotOptions{Compression: archive.CompressionLZ4}, want: archive.CompressionLZ4},
	}

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"a.txt": "hello"})

	for _, tt := range tests {
		t.Run(tt.archive+"/"+tt.want.String(), func(t *testing.T) {
			archivePath := filepath.Join(t.TempDir(), tt.archive)
			manifestPath := filepath.Join(t.TempDir(), "out.csv")

			result, err := osService(tt.opts).Snapshot(root, archivePath, manifestPath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Compression)
			assert.Equal(t, map[string]string{"a.txt": "hello"}, memberNames(t, archivePath, tt.want))
		})
	}
}
