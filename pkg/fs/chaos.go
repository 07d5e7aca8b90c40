package fs

import (
	"errors"
	"io/fs"
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection.
type ChaosConfig struct {
	// OpenFailRate controls how often FS.Open and FS.OpenFile fail with
	// EACCES or EIO.
	OpenFailRate float64

	// ReadFailRate controls how often FS.ReadFile and File.ReadAt fail with
	// EIO before delivering any byte.
	ReadFailRate float64

	// WriteFailRate controls how often File.WriteAt fails with EIO, ENOSPC
	// or EROFS without writing.
	WriteFailRate float64

	// PartialWriteRate controls how often File.WriteAt writes a random
	// prefix and then fails with EIO.
	PartialWriteRate float64

	// SyncFailRate controls how often File.Sync fails with EIO.
	SyncFailRate float64

	// AtomicWriteFailRate controls how often FS.WriteFileAtomic fails. The
	// target is left untouched, as the rename never happened.
	AtomicWriteFailRate float64
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive enables fault-rate injection.
	// This is the default mode for a new [Chaos].
	ChaosModeActive ChaosMode = iota

	// ChaosModeNoOp passes every operation directly to the underlying FS.
	ChaosModeNoOp
)

// ChaosStats contains counts of injected faults.
type ChaosStats struct {
	OpenFails        int64
	ReadFails        int64
	WriteFails       int64
	PartialWrites    int64
	SyncFails        int64
	AtomicWriteFails int64
}

// chaosError marks an error as intentionally injected by [Chaos].
//
// It wraps an [*fs.PathError] carrying a real [syscall.Errno], so
// errors.Is and os.IsPermission keep working.
type chaosError struct {
	Err error
}

func (e *chaosError) Error() string {
	return "chaos: " + e.Err.Error()
}

func (e *chaosError) Unwrap() error {
	return e.Err
}

// IsChaosErr reports whether err (or any wrapped error) was injected by [Chaos].
// Returns false if err is nil.
func IsChaosErr(err error) bool {
	var injected *chaosError

	return errors.As(err, &injected)
}

// Chaos wraps an [FS] and injects random failures for testing.
//
// Each call independently decides whether to inject; there is no sticky
// per-path fault state. Chaos never injects ENOENT, so any os.IsNotExist
// result originates from the wrapped [FS]. Partial writes land a prefix
// on the real file before failing, which is what a flash image sees when
// the host loses power mid-write.
type Chaos struct {
	fs     FS
	config ChaosConfig
	mode   atomic.Uint32

	rngMu sync.Mutex
	rng   *rand.Rand

	openFails        atomic.Int64
	readFails        atomic.Int64
	writeFails       atomic.Int64
	partialWrites    atomic.Int64
	syncFails        atomic.Int64
	atomicWriteFails atomic.Int64
}

// NewChaos creates a new [Chaos] filesystem wrapping the given [FS].
// The seed controls random fault injection for reproducibility.
// Panics if underlying is nil.
func NewChaos(underlying FS, seed int64, config *ChaosConfig) *Chaos {
	if underlying == nil {
		panic("underlying fs is nil")
	}

	return &Chaos{
		fs:     underlying,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed))),
		config: *config,
	}
}

// SetMode updates [Chaos] behavior. Safe to call concurrently with
// filesystem operations.
func (c *Chaos) SetMode(m ChaosMode) { c.mode.Store(uint32(m)) }

// Stats returns the current fault injection counts.
func (c *Chaos) Stats() ChaosStats {
	return ChaosStats{
		OpenFails:        c.openFails.Load(),
		ReadFails:        c.readFails.Load(),
		WriteFails:       c.writeFails.Load(),
		PartialWrites:    c.partialWrites.Load(),
		SyncFails:        c.syncFails.Load(),
		AtomicWriteFails: c.atomicWriteFails.Load(),
	}
}

// TotalFaults returns the total number of injected faults.
func (c *Chaos) TotalFaults() int64 {
	s := c.Stats()

	return s.OpenFails + s.ReadFails + s.WriteFails + s.PartialWrites + s.SyncFails + s.AtomicWriteFails
}

// Open opens path for reading, possibly failing.
func (c *Chaos) Open(path string) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, c.pathErr("open", path, syscall.EACCES, syscall.EIO)
	}

	f, err := c.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c, path: path}, nil
}

// OpenFile opens path with flag and perm, possibly failing.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.should(c.config.OpenFailRate) {
		c.openFails.Add(1)

		return nil, c.pathErr("open", path, syscall.EACCES, syscall.EIO)
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c, path: path}, nil
}

// ReadFile reads path, possibly failing.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.should(c.config.ReadFailRate) {
		c.readFails.Add(1)

		return nil, c.pathErr("read", path, syscall.EIO)
	}

	return c.fs.ReadFile(path)
}

// WriteFileAtomic replaces path, possibly failing before the rename.
func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if c.should(c.config.AtomicWriteFailRate) {
		c.atomicWriteFails.Add(1)

		return c.pathErr("write", path, syscall.EIO, syscall.ENOSPC)
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

// Stat passes through to the wrapped FS.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	return c.fs.Stat(path)
}

// Exists passes through to the wrapped FS.
func (c *Chaos) Exists(path string) (bool, error) {
	return c.fs.Exists(path)
}

// Remove passes through to the wrapped FS.
func (c *Chaos) Remove(path string) error {
	return c.fs.Remove(path)
}

func (c *Chaos) should(rate float64) bool {
	if rate <= 0 || ChaosMode(c.mode.Load()) == ChaosModeNoOp {
		return false
	}

	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.Float64() < rate
}

func (c *Chaos) intN(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	return c.rng.IntN(n)
}

func (c *Chaos) pathErr(op, path string, errnos ...syscall.Errno) error {
	errno := errnos[c.intN(len(errnos))]

	return &chaosError{Err: &fs.PathError{Op: op, Path: path, Err: errno}}
}

// chaosFile injects faults into positional I/O and Sync. Everything else
// goes straight to the wrapped file.
type chaosFile struct {
	File

	chaos *Chaos
	path  string
}

func (f *chaosFile) ReadAt(p []byte, off int64) (int, error) {
	if f.chaos.should(f.chaos.config.ReadFailRate) {
		f.chaos.readFails.Add(1)

		return 0, f.chaos.pathErr("read", f.path, syscall.EIO)
	}

	return f.File.ReadAt(p, off)
}

func (f *chaosFile) WriteAt(p []byte, off int64) (int, error) {
	if f.chaos.should(f.chaos.config.WriteFailRate) {
		f.chaos.writeFails.Add(1)

		return 0, f.chaos.pathErr("write", f.path, syscall.EIO, syscall.ENOSPC, syscall.EROFS)
	}

	if len(p) > 1 && f.chaos.should(f.chaos.config.PartialWriteRate) {
		f.chaos.partialWrites.Add(1)

		n, err := f.File.WriteAt(p[:f.chaos.intN(len(p))], off)
		if err != nil {
			return n, err
		}

		return n, f.chaos.pathErr("write", f.path, syscall.EIO)
	}

	return f.File.WriteAt(p, off)
}

func (f *chaosFile) Sync() error {
	if f.chaos.should(f.chaos.config.SyncFailRate) {
		f.chaos.syncFails.Add(1)

		return f.chaos.pathErr("sync", f.path, syscall.EIO)
	}

	return f.File.Sync()
}

// Compile-time interface checks.
var (
	_ FS   = (*Chaos)(nil)
	_ File = (*chaosFile)(nil)
)
