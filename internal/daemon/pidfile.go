package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/clutter-sh/clutter/internal/lock"
	"github.com/clutter-sh/clutter/internal/schema"
)

// AcquirePidFile takes the daemon singleton lock and records the current
// pid. The returned release function drops the lock and removes the file.
// If another daemon holds the lock, the error wraps
// schema.ErrConcurrentModification and includes the running pid when it
// can be read.
func AcquirePidFile(path string) (func() error, error) {
	h, err := lock.AcquireFile(path)
	if err != nil {
		if errors.Is(err, schema.ErrConcurrentModification) {
			if pid, readErr := ReadPidFile(path); readErr == nil {
				return nil, fmt.Errorf("daemon already running (pid %d): %w", pid, err)
			}
		}
		return nil, err
	}

	f := h.File()
	if err := f.Truncate(0); err != nil {
		h.Release()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		h.Release()
		return nil, fmt.Errorf("write pid file: %w", err)
	}
	if err := f.Sync(); err != nil {
		h.Release()
		return nil, fmt.Errorf("sync pid file: %w", err)
	}

	release := func() error {
		err := h.Release()
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
		return err
	}
	return release, nil
}

// ReadPidFile returns the pid recorded in the daemon pid file.
func ReadPidFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("corrupt pid file %s: %w", path, err)
	}
	return pid, nil
}
