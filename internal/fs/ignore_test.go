package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[0].pattern)
		}
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.log", "build/output"})
		if m.patterns[0].matchPath {
			t.Error("*.log should not be a path pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("build/output should be a path pattern")
		}
	})

	t.Run("drops invalid patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"[unclosed", "*.tmp"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
	})

	t.Run("strips leading slash from anchored patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"/build"})
		if m.patterns[0].pattern != "build" || !m.patterns[0].matchPath {
			t.Errorf("unexpected pattern %+v", m.patterns[0])
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"basename glob matches file in root", []string{"*.log"}, "app.log", true},
		{"basename glob matches file in subdirectory", []string{"*.log"}, "sub/app.log", true},
		{"basename glob does not match different extension", []string{"*.log"}, "app.txt", false},
		{"exact basename matches in subdirectory", []string{"Thumbs.db"}, "sub/Thumbs.db", true},
		{"path pattern matches exact relative path", []string{"build/output"}, "build/output", true},
		{"path pattern does not match wrong path", []string{"build/output"}, "src/output", false},
		{"path pattern with glob", []string{"build/*.o"}, "build/main.o", true},
		{"single star does not cross directories", []string{"build/*.o"}, "build/obj/main.o", false},
		{"double star crosses directories", []string{"build/**/*.o"}, "build/obj/x/main.o", true},
		{"leading double star matches at any depth", []string{"**/cache/*"}, "a/b/cache/blob", true},
		{"anchored pattern matches root only", []string{"/notes.txt"}, "notes.txt", true},
		{"anchored pattern ignores nested", []string{"/notes.txt"}, "sub/notes.txt", false},
		{"question mark wildcard", []string{"?.txt"}, "a.txt", true},
		{"question mark does not match multiple chars", []string{"?.txt"}, "ab.txt", false},
		{"character class", []string{"*.[oa]"}, "main.o", true},
		{"alternation", []string{"*.{jpg,png}"}, "img/cat.png", true},
		{"no patterns matches nothing", nil, "anything.txt", false},
		{"empty string path", []string{"*.log"}, "", false},
		{"multiple patterns second matches", []string{"*.log", "*.tmp"}, "data.tmp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			got := m.Match(tt.relativePath)
			if got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads patterns from file", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, IgnoreFileName)
		content := "*.log\n# comment\n\n*.tmp\nbuild/output\n"
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing test file: %v", err)
		}

		patterns, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		// Raw lines are returned; filtering happens in NewIgnoreMatcher.
		if len(patterns) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(patterns))
		}

		m := NewIgnoreMatcher(patterns)
		if len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("returns nil for missing file", func(t *testing.T) {
		t.Parallel()
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if patterns != nil {
			t.Errorf("expected nil patterns, got %v", patterns)
		}
	})
}
