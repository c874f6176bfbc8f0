// Package fsutil provides the copy and atomic-replace primitives used by
// the sandbox manager and the snapshot store.
//
// Every destructive operation in clutter is built from two moves: copy a
// tree into a staging location, then rename it into place. A reader never
// observes a partially-copied tree as "the" sandbox or "the" original.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyTree recursively copies the directory tree at src into dst.
// dst is created if it does not exist. Symlinks are copied as symlinks;
// file modes and mod times are preserved.
func CopyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}
		dstPath := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			if err := os.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
				return fmt.Errorf("mkdir %s: %w", dstPath, err)
			}
			return nil

		case info.Mode()&os.ModeSymlink != 0:
			return copySymlink(path, dstPath)

		default:
			return CopyFile(path, dstPath, info)
		}
	})
}

// CopyFile copies a single regular file, preserving mode and mod time.
// The destination is written via a temporary file in the same directory
// and renamed into place, so a concurrent reader sees either the old
// content or the new content, never a truncated file.
func CopyFile(src, dst string, info os.FileInfo) error {
	if info == nil {
		var err error
		info, err = os.Stat(src)
		if err != nil {
			return fmt.Errorf("stat %s: %w", src, err)
		}
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer srcFile.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".clutter-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, srcFile); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, dst, err)
	}
	success = true

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", src, err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("remove %s: %w", dst, err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("symlink %s: %w", dst, err)
	}
	return nil
}

// AtomicWriteFile writes data to path through a temp file and rename.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".clutter-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpPath, path, err)
	}
	success = true
	return FsyncDir(dir)
}

// ReplaceDir atomically replaces dst with the staged directory at staging.
// The old dst (if any) is moved aside first and removed only after the
// staged tree is in place, so a crash mid-replace leaves either the old
// tree, the new tree, or both, never neither.
func ReplaceDir(staging, dst string) error {
	old := dst + ".clutter_old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("remove stale %s: %w", old, err)
	}

	hadOld := false
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("move aside %s: %w", dst, err)
		}
		hadOld = true
	}

	if err := os.Rename(staging, dst); err != nil {
		if hadOld {
			// Try to put the old tree back before reporting.
			_ = os.Rename(old, dst)
		}
		return fmt.Errorf("rename %s to %s: %w", staging, dst, err)
	}

	if hadOld {
		if err := os.RemoveAll(old); err != nil {
			return fmt.Errorf("remove %s: %w", old, err)
		}
	}
	return FsyncDir(filepath.Dir(dst))
}

// FsyncDir fsyncs a directory so renames inside it are durable.
func FsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open %s for fsync: %w", dir, err)
	}
	defer d.Close()
	return d.Sync()
}

// DirHasContent reports whether dir contains anything beyond the entries
// named in ignore. A missing directory counts as empty.
func DirHasContent(dir string, ignore ...string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", dir, err)
	}

	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}
	for _, e := range entries {
		if !skip[e.Name()] {
			return true, nil
		}
	}
	return false, nil
}

// ClearDir removes every entry in dir except the names in keep.
func ClearDir(dir string, keep ...string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}

	skip := make(map[string]bool, len(keep))
	for _, name := range keep {
		skip[name] = true
	}
	for _, e := range entries {
		if skip[e.Name()] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", filepath.Join(dir, e.Name()), err)
		}
	}
	return nil
}

// SameContent reports whether two files have identical bytes. Used by
// tests and verify; not on any hot path.
func SameContent(a, b string) (bool, error) {
	da, err := os.ReadFile(a)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", a, err)
	}
	db, err := os.ReadFile(b)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", b, err)
	}
	if len(da) != len(db) {
		return false, nil
	}
	for i := range da {
		if da[i] != db[i] {
			return false, nil
		}
	}
	return true, nil
}
