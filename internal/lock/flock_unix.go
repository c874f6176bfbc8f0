//go:build unix

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// errWouldBlock signals that another process holds the lock.
var errWouldBlock = errors.New("lock held elsewhere")

// flock takes a non-blocking exclusive lock on f.
func flock(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return errWouldBlock
	}
	return err
}

// funlock releases the lock on f.
func funlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
