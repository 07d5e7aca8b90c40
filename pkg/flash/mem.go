package flash

import "fmt"

// MemStats counts operations served by a [Mem] device.
type MemStats struct {
	Reads  [Banks]int
	Writes [Banks]int
	Clears int
}

// Mem is an in-memory [Device].
//
// Erase fills with [Erased]; writes are padded to the write alignment the
// way NOR drivers require. A write that would overflow the bank after
// padding is rejected.
type Mem struct {
	banks  [Banks][]byte
	align  int
	stats  MemStats
	closed bool
}

// MemOptions configures [NewMem].
type MemOptions struct {
	// BankSize is the capacity of each bank. Must be positive.
	BankSize int

	// WriteAlign is the write padding granularity. Zero selects
	// [DefaultWriteAlign]; 1 disables padding.
	WriteAlign int
}

// NewMem returns an erased in-memory device.
func NewMem(opts MemOptions) (*Mem, error) {
	if opts.BankSize <= 0 {
		return nil, fmt.Errorf("bank size %d must be positive: %w", opts.BankSize, ErrOutOfRange)
	}

	align := opts.WriteAlign
	if align == 0 {
		align = DefaultWriteAlign
	}

	m := &Mem{align: align}
	for i := range m.banks {
		m.banks[i] = make([]byte, opts.BankSize)
		erase(m.banks[i])
	}

	return m, nil
}

// Size returns the bank capacity.
func (m *Mem) Size() int {
	return len(m.banks[0])
}

// ReadBank copies len(p) bytes from the start of bank.
func (m *Mem) ReadBank(bank int, p []byte) error {
	if m.closed {
		return ErrClosed
	}

	err := checkAccess(bank, len(p), m.Size())
	if err != nil {
		return err
	}

	m.stats.Reads[bank]++
	copy(p, m.banks[bank])

	return nil
}

// WriteBank erases the padded region of bank and writes p.
func (m *Mem) WriteBank(bank int, p []byte) error {
	if m.closed {
		return ErrClosed
	}

	padded := alignUp(len(p), m.align)

	err := checkAccess(bank, padded, m.Size())
	if err != nil {
		return err
	}

	m.stats.Writes[bank]++

	region := m.banks[bank][:padded]
	erase(region)
	copy(region, p)

	return nil
}

// Clear erases both banks.
func (m *Mem) Clear() error {
	if m.closed {
		return ErrClosed
	}

	m.stats.Clears++

	for i := range m.banks {
		erase(m.banks[i])
	}

	return nil
}

// Close marks the device closed. The contents stay readable through
// [Mem.Bank] so tests can inspect them.
func (m *Mem) Close() error {
	if m.closed {
		return ErrClosed
	}

	m.closed = true

	return nil
}

// Reopen clears the closed flag, simulating a reboot onto the same medium.
func (m *Mem) Reopen() {
	m.closed = false
}

// Bank returns the live backing slice of bank for inspection and
// corruption in tests. Panics on an invalid bank.
func (m *Mem) Bank(bank int) []byte {
	return m.banks[bank]
}

// Stats returns operation counts since creation.
func (m *Mem) Stats() MemStats {
	return m.stats
}

func erase(p []byte) {
	for i := range p {
		p[i] = Erased
	}
}

// Compile-time interface check.
var _ Device = (*Mem)(nil)
