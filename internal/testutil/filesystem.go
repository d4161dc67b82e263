package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"funes/internal/funes"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	Permissions fs.FileMode
	ModTime     time.Time
	IsDirectory bool
	// StatSize overrides the size reported by Stat when non-negative,
	// simulating a file that changes between stat and read.
	StatSize int64
	OpenErr  error
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are slash-separated and used verbatim as keys.
type MockFilesystemManager struct {
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds a file to the mock filesystem.
func (m *MockFilesystemManager) AddFile(p string, content []byte) {
	m.files[p] = &MockFile{
		Content:     content,
		Permissions: 0644,
		ModTime:     time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		StatSize:    -1,
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(p string) {
	m.files[p] = &MockFile{
		Permissions: 0755,
		ModTime:     time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		IsDirectory: true,
		StatSize:    -1,
	}
}

// SetStatSize makes Stat report size for p regardless of its content.
func (m *MockFilesystemManager) SetStatSize(p string, size int64) {
	m.files[p].StatSize = size
}

// SetOpenError makes Open fail with err for p.
func (m *MockFilesystemManager) SetOpenError(p string, err error) {
	m.files[p].OpenErr = err
}

// Contents returns the bytes stored at p and whether p exists.
func (m *MockFilesystemManager) Contents(p string) ([]byte, bool) {
	file, ok := m.files[p]
	if !ok {
		return nil, false
	}
	return file.Content, true
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*funes.Path, error) {
	info, err := m.Stat(rawPath)
	if err != nil {
		return nil, err
	}
	return funes.NewPath(rawPath, info.IsDir(), info), nil
}

func (m *MockFilesystemManager) Enumerate(root *funes.Path) ([]string, error) {
	prefix := strings.TrimSuffix(root.String(), "/") + "/"

	var entries []string
	for p, file := range m.files {
		if file.IsDirectory || !strings.HasPrefix(p, prefix) {
			continue
		}
		if strings.HasPrefix(path.Base(p), ".") {
			continue
		}
		entries = append(entries, strings.TrimPrefix(p, prefix))
	}
	slices.Sort(entries)
	return entries, nil
}

func (m *MockFilesystemManager) Open(p string) (io.ReadCloser, error) {
	file, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, fs.ErrNotExist)
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", p)
	}
	if file.OpenErr != nil {
		return nil, file.OpenErr
	}
	return io.NopCloser(bytes.NewReader(file.Content)), nil
}

func (m *MockFilesystemManager) Stat(p string) (fs.FileInfo, error) {
	file, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("stat %s: %w", p, fs.ErrNotExist)
	}

	size := int64(len(file.Content))
	if file.StatSize >= 0 {
		size = file.StatSize
	}
	mode := file.Permissions
	if file.IsDirectory {
		mode |= fs.ModeDir
	}

	return &mockFileInfo{
		name:    path.Base(p),
		size:    size,
		mode:    mode,
		modTime: file.ModTime,
	}, nil
}

func (m *MockFilesystemManager) Create(p string) (io.WriteCloser, error) {
	file := &MockFile{Permissions: 0644, ModTime: time.Now(), StatSize: -1}
	m.files[p] = file
	return &mockWriter{file: file}, nil
}

type mockWriter struct {
	file *MockFile
}

func (w *mockWriter) Write(b []byte) (int, error) {
	w.file.Content = append(w.file.Content, b...)
	return len(b), nil
}

func (w *mockWriter) Close() error { return nil }

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.mode.IsDir() }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ funes.FilesystemManager = (*MockFilesystemManager)(nil)
