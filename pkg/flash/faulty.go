package flash

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"syscall"
)

// FaultConfig controls random fault injection rates for [Faulty].
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables random injection; deterministic power cuts armed
// with [Faulty.CutNextWrite] still fire.
type FaultConfig struct {
	// ReadFailRate controls how often ReadBank fails with EIO before any
	// byte is delivered.
	ReadFailRate float64

	// WriteFailRate controls how often WriteBank fails with EIO before the
	// medium is touched.
	WriteFailRate float64

	// TornWriteRate controls how often WriteBank lands only a random prefix
	// of the data (after the erase) and then reports [ErrPowerCut].
	TornWriteRate float64

	// ClearFailRate controls how often Clear fails with EIO.
	ClearFailRate float64
}

// FaultStats contains counts of injected faults.
type FaultStats struct {
	ReadFails   int
	WriteFails  int
	TornWrites  int
	PowerCuts   int
	ClearFails  int
	WritesTotal int
}

// injectedError marks an error as intentionally injected by [Faulty].
// It wraps the underlying error so errors.Is/As keep working.
type injectedError struct {
	Err error
}

func (e *injectedError) Error() string {
	return "injected: " + e.Err.Error()
}

func (e *injectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by
// [Faulty]. Returns false if err is nil.
func IsInjected(err error) bool {
	var injected *injectedError

	return errors.As(err, &injected)
}

// cutNone means no power cut is armed.
const cutNone = -1

// Faulty wraps a [Device] and injects failures for testing.
//
// Two fault models are supported:
//   - Random: read/write/clear failures and torn writes at the rates in
//     [FaultConfig], driven by a seeded PCG source for reproducibility.
//   - Deterministic: [Faulty.CutNextWrite] arms a power cut that lets the
//     next write land exactly n bytes and then fails. n == 0 models a cut
//     right after the erase.
//
// A torn or cut write reaches the wrapped device as a full-length write
// whose tail is left erased, like a NOR part losing power mid-program.
// The other bank is never touched.
type Faulty struct {
	dev    Device
	rng    *rand.Rand
	config FaultConfig
	cutAt  int
	stats  FaultStats
}

// NewFaulty wraps dev. The seed controls random injection.
// Panics if dev is nil.
func NewFaulty(dev Device, seed uint64, config FaultConfig) *Faulty {
	if dev == nil {
		panic("device is nil")
	}

	return &Faulty{
		dev:    dev,
		rng:    rand.New(rand.NewPCG(seed, seed)),
		config: config,
		cutAt:  cutNone,
	}
}

// CutNextWrite arms a power cut: the next WriteBank writes only the first
// n bytes of its data and returns [ErrPowerCut]. The cut fires once.
func (f *Faulty) CutNextWrite(n int) {
	if n < 0 {
		n = 0
	}

	f.cutAt = n
}

// Disarm cancels an armed power cut and turns random injection off.
func (f *Faulty) Disarm() {
	f.cutAt = cutNone
	f.config = FaultConfig{}
}

// Stats returns the injected fault counts.
func (f *Faulty) Stats() FaultStats {
	return f.stats
}

// Size returns the wrapped device's bank size.
func (f *Faulty) Size() int {
	return f.dev.Size()
}

// ReadBank reads through to the wrapped device unless a read failure is
// injected.
func (f *Faulty) ReadBank(bank int, p []byte) error {
	if f.should(f.config.ReadFailRate) {
		f.stats.ReadFails++

		return &injectedError{Err: fmt.Errorf("read bank %d: %w", bank, syscall.EIO)}
	}

	return f.dev.ReadBank(bank, p)
}

// WriteBank writes through to the wrapped device, possibly failing,
// tearing, or cutting the write.
func (f *Faulty) WriteBank(bank int, p []byte) error {
	f.stats.WritesTotal++

	if f.cutAt != cutNone {
		n := min(f.cutAt, len(p))
		f.cutAt = cutNone
		f.stats.PowerCuts++

		return f.partialWrite(bank, p, n)
	}

	if f.should(f.config.WriteFailRate) {
		f.stats.WriteFails++

		return &injectedError{Err: fmt.Errorf("write bank %d: %w", bank, syscall.EIO)}
	}

	if len(p) > 0 && f.should(f.config.TornWriteRate) {
		f.stats.TornWrites++

		return f.partialWrite(bank, p, f.rng.IntN(len(p)))
	}

	return f.dev.WriteBank(bank, p)
}

// partialWrite erases the whole region p would occupy but programs only
// its first n bytes; the rest stays erased.
func (f *Faulty) partialWrite(bank int, p []byte, n int) error {
	torn := make([]byte, len(p))
	erase(torn)
	copy(torn, p[:n])

	err := f.dev.WriteBank(bank, torn)
	if err != nil {
		return err
	}

	return &injectedError{Err: fmt.Errorf("write bank %d after %d of %d bytes: %w", bank, n, len(p), ErrPowerCut)}
}

// Clear erases both banks unless a clear failure is injected.
func (f *Faulty) Clear() error {
	if f.should(f.config.ClearFailRate) {
		f.stats.ClearFails++

		return &injectedError{Err: fmt.Errorf("clear: %w", syscall.EIO)}
	}

	return f.dev.Clear()
}

// Close closes the wrapped device.
func (f *Faulty) Close() error {
	return f.dev.Close()
}

func (f *Faulty) should(rate float64) bool {
	if rate <= 0 {
		return false
	}

	return f.rng.Float64() < rate
}

// Compile-time interface check.
var _ Device = (*Faulty)(nil)
