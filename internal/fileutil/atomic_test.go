package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAtomicWriteReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")

	if err := AtomicWrite(path, []byte("first\n"), 0644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWrite(path, []byte("second\n"), 0600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "second\n" {
		t.Errorf("content = %q", data)
	}
	if got := FileMode(path, 0); got != 0600 {
		t.Errorf("mode = %v, want 0600", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %d entries", len(entries))
	}
}

func TestAtomicWriteMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "file.txt")
	if err := AtomicWrite(path, []byte("x"), 0644); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestFileModeDefault(t *testing.T) {
	if got := FileMode(filepath.Join(t.TempDir(), "nope"), 0640); got != 0640 {
		t.Errorf("FileMode default = %v", got)
	}
}
