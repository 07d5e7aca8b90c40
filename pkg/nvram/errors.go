package nvram

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by nvram operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, nvram.ErrNoBootableSlot) {
//	    // fall back to rescue mode
//	}
var (
	// ErrFormat indicates bytes that do not form a valid section or entry:
	// header or data CRC mismatch, oversize key/value, malformed lengths.
	//
	// A single bank with a format problem is recovered by [Manager.Init];
	// callers see this error only from direct codec use or from [Store.Set].
	ErrFormat = errors.New("nvram: format")

	// ErrCapacity indicates the serialized store does not fit the configured
	// section size or the provided buffer.
	//
	// Recovery: remove entries or provision a larger MaxDataSize.
	ErrCapacity = errors.New("nvram: capacity exceeded")

	// ErrIO indicates the flash backend failed to read, erase or write.
	//
	// A failed commit leaves the store dirty and the active bank unchanged,
	// so retrying is safe.
	ErrIO = errors.New("nvram: io")

	// ErrNotFound indicates the key is absent.
	ErrNotFound = errors.New("nvram: not found")

	// ErrNotEmpty indicates a deserialize target store already has entries.
	//
	// This is a programming error.
	ErrNotEmpty = errors.New("nvram: store not empty")

	// ErrParse indicates a boot retry counter is not a decimal number.
	ErrParse = errors.New("nvram: parse")

	// ErrNoBootableSlot indicates both slots are out of retries, or the
	// boot state could not be reinitialized within the retry bound.
	//
	// Recovery: a higher level decision (rescue or update mode).
	ErrNoBootableSlot = errors.New("nvram: no bootable slot")
)

// Refinements of the taxonomy above. Each one matches its parent with
// [errors.Is].
var (
	// ErrValueTooLong is returned by [Store.Set] for keys or values longer
	// than [MaxEntryLen] bytes. Matches [ErrFormat].
	ErrValueTooLong = fmt.Errorf("%w: key or value longer than %d bytes", ErrFormat, MaxEntryLen)

	// ErrInvalidFormat is returned by [Codec.Deserialize] for a length field
	// at or above the sentinel, or an entry running past data_size.
	// Matches [ErrFormat].
	ErrInvalidFormat = fmt.Errorf("%w: invalid entry encoding", ErrFormat)

	// ErrBufferTooSmall is returned by [Codec.Serialize] when the output
	// buffer is shorter than [Codec.SerializedSize]. Matches [ErrCapacity].
	ErrBufferTooSmall = fmt.Errorf("%w: buffer too small", ErrCapacity)
)
