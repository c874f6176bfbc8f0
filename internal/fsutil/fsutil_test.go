package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFile is a test helper that creates a file with parents.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCopyTree(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "beta")
	if err := os.Symlink("a.txt", filepath.Join(src, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	if err := CopyTree(src, dst); err != nil {
		t.Fatalf("CopyTree() failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "sub", "b.txt"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "beta" {
		t.Errorf("copied content = %q, want %q", got, "beta")
	}

	target, err := os.Readlink(filepath.Join(dst, "link"))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != "a.txt" {
		t.Errorf("symlink target = %q, want a.txt", target)
	}
}

func TestAtomicWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	if err := AtomicWriteFile(path, []byte("one"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile() failed: %v", err)
	}
	if err := AtomicWriteFile(path, []byte("two"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile() overwrite failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("content = %q, want %q", got, "two")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}

func TestReplaceDir(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "live")
	staging := filepath.Join(root, "staging")

	writeFile(t, filepath.Join(dst, "old.txt"), "old")
	writeFile(t, filepath.Join(staging, "new.txt"), "new")

	if err := ReplaceDir(staging, dst); err != nil {
		t.Fatalf("ReplaceDir() failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "old.txt")); !os.IsNotExist(err) {
		t.Error("old content survived replace")
	}
	if _, err := os.Stat(filepath.Join(dst, "new.txt")); err != nil {
		t.Errorf("new content missing after replace: %v", err)
	}
	if _, err := os.Stat(dst + ".clutter_old"); !os.IsNotExist(err) {
		t.Error("move-aside directory was not cleaned up")
	}
}

func TestReplaceDir_NoExisting(t *testing.T) {
	root := t.TempDir()
	staging := filepath.Join(root, "staging")
	dst := filepath.Join(root, "live")
	writeFile(t, filepath.Join(staging, "f.txt"), "x")

	if err := ReplaceDir(staging, dst); err != nil {
		t.Fatalf("ReplaceDir() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "f.txt")); err != nil {
		t.Errorf("content missing: %v", err)
	}
}

func TestDirHasContent(t *testing.T) {
	dir := t.TempDir()

	has, err := DirHasContent(dir, ".marker")
	if err != nil {
		t.Fatalf("DirHasContent() failed: %v", err)
	}
	if has {
		t.Error("empty dir reported as having content")
	}

	writeFile(t, filepath.Join(dir, ".marker"), "meta")
	has, err = DirHasContent(dir, ".marker")
	if err != nil {
		t.Fatalf("DirHasContent() failed: %v", err)
	}
	if has {
		t.Error("marker-only dir reported as having content")
	}

	writeFile(t, filepath.Join(dir, "real.txt"), "data")
	has, err = DirHasContent(dir, ".marker")
	if err != nil {
		t.Fatalf("DirHasContent() failed: %v", err)
	}
	if !has {
		t.Error("dir with content reported as empty")
	}
}

func TestDirHasContent_Missing(t *testing.T) {
	has, err := DirHasContent(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("DirHasContent() failed: %v", err)
	}
	if has {
		t.Error("missing dir reported as having content")
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".marker"), "meta")
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "sub", "b.txt"), "b")

	if err := ClearDir(dir, ".marker"); err != nil {
		t.Fatalf("ClearDir() failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != ".marker" {
		t.Errorf("entries after clear = %v, want only .marker", entries)
	}
}
