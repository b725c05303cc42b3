package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystem(t *testing.T) {
	m := NewMemoryFileSystem()

	if _, err := m.Create("out/a.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected ErrNotExist without a parent directory, got %v", err)
	}
	if err := m.MkdirAll("out/sub", 0755); err != nil {
		t.Fatal(err)
	}

	w, err := m.Create("out/a.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if data, _ := m.ReadFile("out/a.txt"); len(data) != 0 {
		t.Errorf("expected content to be invisible before Close, got %q", data)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := m.ReadFile("out/./a.txt")
	if err != nil || string(data) != "hello" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}

	if _, err := m.Create("out/sub/b.txt"); err != nil {
		t.Fatalf("Create in nested dir: %v", err)
	}
	want := []string{filepath.Clean("out/a.txt"), filepath.Clean("out/sub/b.txt")}
	got := m.Files()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Files = %v, want %v", got, want)
	}

	if err := m.Remove("out/a.txt"); err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("out/a.txt"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist on second remove, got %v", err)
	}
}

func TestOSFileSystem(t *testing.T) {
	var fsys FileSystem = OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	w, err := fsys.Create(filepath.Join(dir, "x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := fsys.Remove(filepath.Join(dir, "x")); err != nil {
		t.Fatal(err)
	}
}
