package filesys

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAlreadyLocked is returned by Lock when another process already holds
// the advisory lock on the given file.
var ErrAlreadyLocked = fmt.Errorf("path is already locked by another process")

// Lock opens (creating if necessary) the sentinel file at path and takes a
// non-blocking advisory flock(2) on it. The returned file must be kept open
// and eventually passed to Unlock; closing it without unlocking also
// releases the OS lock. Neither Lock nor Unlock removes the sentinel file.
func Lock(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if err == unix.EWOULDBLOCK {
			return nil, ErrAlreadyLocked
		}
		return nil, err
	}

	return file, nil
}

// Unlock releases the advisory lock taken by Lock and closes the file.
func Unlock(file *os.File) error {
	if file == nil {
		return nil
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
