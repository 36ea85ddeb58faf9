package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFileScoped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("database:\n  path: app.db\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	data, err := ReadFileScoped(path)
	if err != nil {
		t.Fatalf("ReadFileScoped: %v", err)
	}
	if string(data) != "database:\n  path: app.db\n" {
		t.Fatalf("unexpected content: %q", string(data))
	}
}

func TestReadFileScopedUnnormalizedPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("norm"), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := ReadFileScoped(filepath.Join(dir, ".", "file.txt"))
	if err != nil {
		t.Fatalf("ReadFileScoped: %v", err)
	}
	if string(data) != "norm" {
		t.Errorf("content = %q, want %q", string(data), "norm")
	}
}

func TestReadFileScopedRejectsInvalidPath(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"", ".", string(filepath.Separator)} {
		if _, err := ReadFileScoped(p); err == nil {
			t.Errorf("expected error for %q", p)
		}
	}
}

func TestReadFileScopedMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := ReadFileScoped(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := ReadFileScoped(filepath.Join(t.TempDir(), "nodir", "absent.txt")); err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestReadFileScopedDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "subdir")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFileScoped(sub); err == nil {
		t.Error("expected error when the path is a directory")
	}
}
