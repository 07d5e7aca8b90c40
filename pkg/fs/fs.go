// Package fs provides the small filesystem surface bootnv needs.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] and
//     github.com/natefinch/atomic
//
// Flash images and device nodes are opened through [FS] so tests can swap
// in failing implementations without touching the flash code.
package fs

import (
	"io"
	"os"
)

// File represents an open file or device node.
//
// This interface is satisfied by [os.File]. Positional I/O ([io.ReaderAt],
// [io.WriterAt]) is required because banks live at fixed offsets.
type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	io.Seeker

	// Fd returns the file descriptor. See [os.File.Fd].
	// Used for ioctls on MTD device nodes.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to stable storage. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations used by flash backends and the CLI.
//
// Paths use OS semantics (like the os package and path/filepath).
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces path with data so that readers see either the
	// old or the new content, never a mix.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
