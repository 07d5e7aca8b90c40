//go:build unix

package fs

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	lockExclusive   = unix.LOCK_EX
	lockNonBlocking = unix.LOCK_NB
	lockUnlock      = unix.LOCK_UN
)

// platformFlock calls flock(2), retrying on EINTR.
func platformFlock(fd int, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}
