// Package flash provides the raw storage backends used by nvram.
//
// A [Device] exposes two equally sized banks with erase-then-write
// semantics and no wear leveling. The main types are:
//   - [Device]: the interface consumed by nvram
//   - [Mem]: in-memory device for tests and simulation
//   - [Image]: a regular file holding both banks
//   - [MTD]: a Linux MTD character device (/dev/mtdN)
//   - [Faulty]: a wrapper that injects read/write failures and power cuts
//
// Opening a device acquires its resources; [Device.Close] releases them.
// Devices are not safe for concurrent use.
package flash

import (
	"errors"
	"fmt"
)

// Banks is the number of banks every device exposes.
const Banks = 2

// DefaultWriteAlign is the write length granularity used when a device is
// not told otherwise. Writes are padded with erased bytes up to a multiple
// of it.
const DefaultWriteAlign = 16

// Erased is the value of a byte after erase on NOR flash.
const Erased byte = 0xFF

// Device is a raw two-bank storage medium.
//
// Implementations must never read or modify the other bank while serving a
// bank operation: the ping-pong commit in nvram depends on it.
type Device interface {
	// Size returns the usable capacity of one bank in bytes.
	Size() int

	// ReadBank reads len(p) bytes from the start of bank into p.
	ReadBank(bank int, p []byte) error

	// WriteBank erases the start of bank (at the device's erase
	// granularity) and writes p there. The device may pad the write up to
	// its alignment with [Erased] bytes.
	WriteBank(bank int, p []byte) error

	// Clear erases both banks entirely.
	Clear() error

	// Close releases the device. Further calls return [ErrClosed].
	Close() error
}

var (
	// ErrBank indicates a bank index other than 0 or 1.
	ErrBank = errors.New("flash: invalid bank")

	// ErrOutOfRange indicates a read or write that does not fit the bank.
	ErrOutOfRange = errors.New("flash: out of range")

	// ErrClosed indicates the device was already closed.
	ErrClosed = errors.New("flash: closed")

	// ErrPowerCut is returned by [Faulty] for a simulated power loss.
	ErrPowerCut = errors.New("flash: power cut")
)

// checkAccess validates a bank access of n bytes against a bank of size.
func checkAccess(bank, n, size int) error {
	if bank < 0 || bank >= Banks {
		return fmt.Errorf("bank %d: %w", bank, ErrBank)
	}

	if n < 0 || n > size {
		return fmt.Errorf("bank %d: %d bytes exceeds bank size %d: %w", bank, n, size, ErrOutOfRange)
	}

	return nil
}

// alignUp rounds n up to a multiple of align. align <= 1 returns n.
func alignUp(n, align int) int {
	if align <= 1 {
		return n
	}

	if r := n % align; r != 0 {
		return n + align - r
	}

	return n
}
