// Package lock implements the cross-process publish lock: an exclusively
// created lock file with mtime-based staleness.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/starford/vitrine/internal/apperr"
)

// Holder describes the process recorded in a lock file.
type Holder struct {
	PID        int           `json:"pid"`
	AcquiredAt time.Time     `json:"acquired_at"`
	Age        time.Duration `json:"age"`
}

// Lock is a held publish lock.
type Lock struct {
	path string
}

// Acquire exclusively creates the lock file at path. A lock file older than
// staleAfter is removed and acquisition retried exactly once. When another
// holder keeps the lock the returned error wraps apperr.ErrLocked.
func Acquire(path string, staleAfter time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lock: mkdir: %w", err)
	}

	l, err := create(path)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("lock: create %s: %w", path, err)
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		// Holder released between our create and stat; one more try.
		if errors.Is(statErr, fs.ErrNotExist) {
			return retry(path)
		}
		return nil, fmt.Errorf("lock: stat %s: %w", path, statErr)
	}
	age := time.Since(info.ModTime())
	if staleAfter <= 0 || age < staleAfter {
		return nil, fmt.Errorf("lock: %s held for %s: %w", path, age.Round(time.Second), apperr.ErrLocked)
	}

	slog.Warn("lock: reclaiming stale lock",
		slog.String("path", path),
		slog.String("age", age.Round(time.Second).String()))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("lock: remove stale %s: %w", path, err)
	}
	return retry(path)
}

func retry(path string) (*Lock, error) {
	l, err := create(path)
	if err == nil {
		return l, nil
	}
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("lock: %s: %w", path, apperr.ErrLocked)
	}
	return nil, fmt.Errorf("lock: create %s: %w", path, err)
}

func create(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\nts=%d\n", os.Getpid(), time.Now().Unix())
	_, werr := f.WriteString(content)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(path)
		return nil, errors.Join(werr, cerr)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file. Writes committed while holding the lock
// are not affected by a release failure.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	return nil
}

// Inspect reads the holder recorded in the lock file at path.
func Inspect(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Holder{}, apperr.ErrNotFound
		}
		return Holder{}, fmt.Errorf("lock: inspect %s: %w", path, err)
	}
	var h Holder
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(val)
		case "ts":
			if ts, err := strconv.ParseInt(val, 10, 64); err == nil {
				h.AcquiredAt = time.Unix(ts, 0)
			}
		}
	}
	if info, err := os.Stat(path); err == nil {
		h.Age = time.Since(info.ModTime())
	}
	return h, nil
}
