package osfilesystem

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileCreatesParentDirs(t *testing.T) {
	fs := New()
	path := filepath.Join(t.TempDir(), "frames", "clip-a", "frame-000001.png")

	if err := fs.WriteFile(path, []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("read back %q, want %q", data, "hello")
	}
}

func TestRemoveAllClearsTree(t *testing.T) {
	fs := New()
	base := t.TempDir()
	dir := filepath.Join(base, "frames")

	if err := fs.WriteFile(filepath.Join(dir, "clip-a", "f.png"), []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := fs.RemoveAll(dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("frames dir still present after RemoveAll: %v", err)
	}

	// A second removal of the now-missing tree is not an error.
	if err := fs.RemoveAll(dir); err != nil {
		t.Errorf("RemoveAll on missing dir: %v", err)
	}
}
