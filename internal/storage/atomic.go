package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const defaultFileMode fs.FileMode = 0o644

// writeTemp writes data into the temporary sibling. Tests replace it to
// simulate an interrupted write.
var writeTemp = func(f *os.File, data []byte) (int, error) {
	return f.Write(data)
}

// WriteText atomically replaces the file at path with content.
func WriteText(path, content string) error {
	return WriteBytes(path, []byte(content))
}

// WriteBytes atomically replaces the file at path: temp sibling → fsync →
// rename → directory fsync. An existing destination keeps its permission bits.
// On failure the temp file is removed and the destination is left untouched.
func WriteBytes(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	mode := defaultFileMode
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return fmt.Errorf("storage: %s is a directory", path)
		}
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := writeTemp(tmp, content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	syncDir(dir)
	return nil
}

// WriteIfChanged writes content only when the destination differs.
// It reports whether a write happened.
func WriteIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, content) {
		return false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("storage: read %s: %w", path, err)
	}
	if err := WriteBytes(path, content); err != nil {
		return false, err
	}
	return true, nil
}

// syncDir persists the directory entry after a rename. Platforms that
// cannot fsync a directory are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
