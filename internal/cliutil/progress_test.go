package cliutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestProgressNonTTYDedupesIdenticalLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()

	p := NewProgress(f, "image.E01")
	if p.tty {
		t.Skip("test file unexpectedly reports as a tty")
	}
	p.Update(0, 100, "reading")
	p.Update(0, 100, "reading") // identical line, must not duplicate
	p.Update(50, 100, "reading")
	p.Done()

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (duplicate update suppressed): %q", len(lines), contents)
	}
}
