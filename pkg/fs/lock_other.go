//go:build !unix

package fs

const (
	lockExclusive   = 2
	lockNonBlocking = 4
	lockUnlock      = 8
)

func platformFlock(int, int) error { return nil }

func isWouldBlock(error) bool { return false }
