package fs

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	// ErrWouldBlock is returned when a lock cannot be acquired without waiting.
	//
	// It is returned by [Locker.TryLock] when the lock is held by another
	// process, and by [Locker.LockWithTimeout] when the timeout expires.
	ErrWouldBlock = errors.New("lock would block")

	// ErrInvalidTimeout is returned when a timeout is <= 0.
	ErrInvalidTimeout = errors.New("invalid lock timeout")
)

// Locker takes advisory exclusive locks on existing files, typically a flash
// device node or image, so that two bootnv processes never commit to the same
// medium at once.
//
// Locks are flock(2) locks: they belong to an open file description, not a
// path, and every cooperating process must take them. On platforms without
// flock the lock is a no-op.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker that opens files through fs.
// Panics if fs is nil.
func NewLocker(fs FS) *Locker {
	if fs == nil {
		panic("fs is nil")
	}

	return &Locker{fs: fs, flock: platformFlock}
}

// Lock represents a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu    sync.Mutex
	file  File
	flock func(fd int, how int) error
}

// Close releases the lock and closes the underlying file descriptor.
//
// Close is idempotent. If both unlocking and closing fail, the returned
// error wraps both.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := lk.flock(int(lk.file.Fd()), lockUnlock)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// TryLock attempts to acquire an exclusive lock on path without blocking.
// Returns [ErrWouldBlock] if another holder has it.
func (l *Locker) TryLock(path string) (*Lock, error) {
	return l.lockPolling(path, 0)
}

// LockWithTimeout acquires an exclusive lock on path, retrying with
// backoff (1ms up to 25ms) until timeout expires.
//
// Returns an error matching [ErrWouldBlock] on timeout, and
// [ErrInvalidTimeout] if timeout <= 0.
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be > 0", ErrInvalidTimeout)
	}

	return l.lockPolling(path, timeout)
}

func (l *Locker) lockPolling(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	file, err := l.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	for {
		err = l.flock(int(file.Fd()), lockExclusive|lockNonBlocking)
		if err == nil {
			return &Lock{file: file, flock: l.flock}, nil
		}

		if !isWouldBlock(err) {
			_ = file.Close()

			return nil, fmt.Errorf("lock %s: flock: %w", path, err)
		}

		remaining := time.Until(deadline)
		if timeout == 0 || remaining <= 0 {
			_ = file.Close()

			if timeout == 0 {
				return nil, fmt.Errorf("lock %s: %w", path, ErrWouldBlock)
			}

			return nil, fmt.Errorf("lock %s: %w: timed out after %s", path, ErrWouldBlock, timeout)
		}

		time.Sleep(min(backoff, remaining))

		backoff = min(2*backoff, 25*time.Millisecond)
	}
}
