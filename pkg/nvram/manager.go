package nvram

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/bootnv/pkg/flash"
)

// DefaultMaxDataSize is the data capacity used when none is configured:
// one 16-byte header plus data fits a 4 KiB erase block.
const DefaultMaxDataSize = 4096 - HeaderSize

// NoBank is the active bank index when neither bank holds a valid section.
const NoBank = -1

// Log field names.
const (
	logFieldBank    = "bank"
	logFieldCounter = "counter"
	logFieldSize    = "size"
)

// ManagerOptions configures [NewManager].
type ManagerOptions struct {
	// MaxDataSize is the largest data region (excluding the header) a
	// section may hold. It is a deployment constant. The effective capacity
	// is further capped by the device bank size. Zero selects
	// [DefaultMaxDataSize].
	MaxDataSize int

	// ByteOrder is the wire byte order. Nil selects little-endian.
	ByteOrder binary.ByteOrder

	// VerifyWrites reads every committed section back and compares it.
	VerifyWrites bool

	// Logger receives bank diagnostics. Nil selects logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// BankState describes one bank as last seen by the manager.
type BankState struct {
	// Valid is true iff the header CRC, data CRC and entry encoding all
	// checked out.
	Valid bool

	// Header is the decoded header; meaningful only when Valid.
	Header Header

	// Reason says why the bank is not valid. Empty when Valid.
	Reason string
}

// Status is a snapshot of the manager's view of both banks.
type Status struct {
	Banks [flash.Banks]BankState

	// Active is the authoritative bank, or [NoBank].
	Active int

	// Capacity is the effective data capacity in bytes.
	Capacity int

	// CounterTie is set when both banks were valid with equal counters at
	// Init. Bank 0 was chosen. This should never happen with a correct
	// writer.
	CounterTie bool
}

// Manager owns the two on-flash banks and performs power-safe commits.
//
// A commit always writes the bank that is not active, with a counter one
// higher than the active bank's. The active bank is never erased or
// written during a commit, so a power loss mid-write leaves it intact and
// the torn bank fails its CRCs at the next [Manager.Init].
//
// Manager is not safe for concurrent use.
type Manager struct {
	dev      flash.Device
	codec    Codec
	capacity int
	verify   bool
	log      logrus.FieldLogger

	banks  [flash.Banks]BankState
	active int
	tie    bool

	scratch []byte
}

// NewManager returns a manager over dev. Call [Manager.Init] before use.
//
// Returns [ErrCapacity] if the device cannot hold even a section header.
func NewManager(dev flash.Device, opts ManagerOptions) (*Manager, error) {
	if dev == nil {
		panic("device is nil")
	}

	maxData := opts.MaxDataSize
	if maxData == 0 {
		maxData = DefaultMaxDataSize
	}

	if maxData < 0 {
		return nil, fmt.Errorf("max data size %d is negative: %w", maxData, ErrCapacity)
	}

	if dev.Size() < HeaderSize {
		return nil, fmt.Errorf("bank size %d is smaller than the %d byte header: %w", dev.Size(), HeaderSize, ErrCapacity)
	}

	capacity := min(maxData, dev.Size()-HeaderSize)

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Manager{
		dev:      dev,
		codec:    NewCodec(opts.ByteOrder),
		capacity: capacity,
		verify:   opts.VerifyWrites,
		log:      logger,
		active:   NoBank,
		scratch:  make([]byte, HeaderSize+capacity),
	}, nil
}

// Codec returns the codec the manager uses.
func (m *Manager) Codec() Codec {
	return m.codec
}

// Capacity returns the effective data capacity in bytes.
func (m *Manager) Capacity() int {
	return m.capacity
}

// Status returns the manager's current view of both banks.
func (m *Manager) Status() Status {
	return Status{
		Banks:      m.banks,
		Active:     m.active,
		Capacity:   m.capacity,
		CounterTie: m.tie,
	}
}

// Init reads and validates both banks, selects the authoritative one and
// returns its contents as a clean store.
//
// A bank is valid iff its header CRC matches, its data fits the capacity,
// its data CRC matches and its entries decode. Among valid banks the one
// with the greater counter wins; equal counters select bank 0 and set
// [Status.CounterTie]. With no valid bank the store is empty.
//
// Bad banks are logged and skipped. Only backend read failures are
// returned, wrapped with [ErrIO].
func (m *Manager) Init() (*Store, error) {
	var stores [flash.Banks]*Store

	for bank := range flash.Banks {
		state, store, err := m.readBank(bank)
		if err != nil {
			return nil, err
		}

		m.banks[bank] = state
		stores[bank] = store
	}

	m.active, m.tie = selectActive(m.banks)

	if m.tie {
		m.log.WithFields(logrus.Fields{
			logFieldCounter: m.banks[0].Header.Counter,
		}).Error("both banks valid with equal counters, selecting bank 0")
	}

	if m.active == NoBank {
		m.log.Info("no valid bank, starting with an empty store")

		return NewStore(), nil
	}

	m.log.WithFields(logrus.Fields{
		logFieldBank:    m.active,
		logFieldCounter: m.banks[m.active].Header.Counter,
		logFieldSize:    m.banks[m.active].Header.DataSize,
	}).Debug("active bank selected")

	return stores[m.active], nil
}

// readBank validates one bank. A non-nil error is always a backend failure;
// format problems are reported through the returned state.
func (m *Manager) readBank(bank int) (BankState, *Store, error) {
	buf := m.scratch
	logger := m.log.WithField(logFieldBank, bank)

	err := m.dev.ReadBank(bank, buf[:HeaderSize])
	if err != nil {
		return BankState{}, nil, fmt.Errorf("read bank %d header: %w: %w", bank, ErrIO, err)
	}

	hdr, ok := m.codec.ParseHeader(buf)
	if !ok {
		if isErased(buf[:HeaderSize]) {
			logger.Debug("bank is erased")

			return invalidBank("erased"), nil, nil
		}

		logger.Warn("invalid header in bank")

		return invalidBank("header crc mismatch"), nil, nil
	}

	if uint64(hdr.DataSize) > uint64(m.capacity) {
		logger.WithField(logFieldSize, hdr.DataSize).Warn("bank data size exceeds capacity")

		return invalidBank(fmt.Sprintf("data size %d exceeds capacity %d", hdr.DataSize, m.capacity)), nil, nil
	}

	end := HeaderSize + int(hdr.DataSize)

	err = m.dev.ReadBank(bank, buf[:end])
	if err != nil {
		return BankState{}, nil, fmt.Errorf("read bank %d data: %w: %w", bank, ErrIO, err)
	}

	if !m.codec.DataValid(hdr, buf[HeaderSize:end]) {
		logger.WithField(logFieldCounter, hdr.Counter).Warn("data crc error in bank")

		return invalidBank("data crc mismatch"), nil, nil
	}

	store := NewStore()

	err = m.codec.Deserialize(hdr, buf[HeaderSize:end], store)
	if err != nil {
		logger.WithError(err).Warn("undecodable entries in bank")

		return invalidBank(err.Error()), nil, nil
	}

	logger.WithFields(logrus.Fields{
		logFieldCounter: hdr.Counter,
		logFieldSize:    hdr.DataSize,
	}).Debug("bank valid")

	return BankState{Valid: true, Header: hdr}, store, nil
}

func invalidBank(reason string) BankState {
	return BankState{Reason: reason}
}

func isErased(p []byte) bool {
	for _, b := range p {
		if b != flash.Erased {
			return false
		}
	}

	return true
}

// selectActive applies the bank selection rule. It returns the active bank
// (or NoBank) and whether a counter tie was broken.
func selectActive(banks [flash.Banks]BankState) (int, bool) {
	switch {
	case banks[0].Valid && banks[1].Valid:
		c0, c1 := banks[0].Header.Counter, banks[1].Header.Counter
		if c0 == c1 {
			return 0, true
		}

		if c0 > c1 {
			return 0, false
		}

		return 1, false
	case banks[0].Valid:
		return 0, false
	case banks[1].Valid:
		return 1, false
	default:
		return NoBank, false
	}
}

// Commit persists s to the non-active bank if s is dirty.
//
// The new section carries the active counter plus one (0 when no bank is
// active) and goes to the other bank (bank 0 when none is active). On
// success the written bank becomes active and s is marked clean.
//
// Returns [ErrCapacity] if the snapshot does not fit; entries are never
// dropped to make it fit. Returns [ErrIO] if the device fails; in that case
// s stays dirty and the active bank is unchanged, so a retry is safe.
func (m *Manager) Commit(s *Store) error {
	if !s.Dirty() {
		return nil
	}

	size := m.codec.SerializedSize(s)
	if uint64(size) > uint64(len(m.scratch)) {
		return fmt.Errorf("snapshot needs %d data bytes, capacity is %d: %w", size-HeaderSize, m.capacity, ErrCapacity)
	}

	target := 0

	var counter uint32

	if m.active != NoBank {
		target = 1 - m.active
		counter = m.banks[m.active].Header.Counter + 1
	}

	n, err := m.codec.Serialize(s, counter, m.scratch)
	if err != nil {
		return err
	}

	section := m.scratch[:n]
	logger := m.log.WithFields(logrus.Fields{
		logFieldBank:    target,
		logFieldCounter: counter,
		logFieldSize:    n,
	})

	err = m.dev.WriteBank(target, section)
	if err != nil {
		m.banks[target] = invalidBank("write failed")
		logger.WithError(err).Error("failed to write bank")

		return fmt.Errorf("commit to bank %d: %w: %w", target, ErrIO, err)
	}

	if m.verify {
		err = m.verifyBank(target, section)
		if err != nil {
			m.banks[target] = invalidBank("readback mismatch")
			logger.WithError(err).Error("readback failed")

			return err
		}
	}

	hdr, _ := m.codec.ParseHeader(section)
	m.banks[target] = BankState{Valid: true, Header: hdr}
	m.active = target
	m.tie = false
	s.markClean()

	logger.Info("committed")

	return nil
}

func (m *Manager) verifyBank(bank int, want []byte) error {
	got := make([]byte, len(want))

	err := m.dev.ReadBank(bank, got)
	if err != nil {
		return fmt.Errorf("readback bank %d: %w: %w", bank, ErrIO, err)
	}

	if !bytes.Equal(got, want) {
		return fmt.Errorf("readback bank %d differs from written data: %w", bank, ErrIO)
	}

	return nil
}

// Clear erases both banks and empties s. Afterwards no bank is active and
// s is clean, so nothing is written until the next mutation.
func (m *Manager) Clear(s *Store) error {
	err := m.dev.Clear()
	if err != nil {
		return fmt.Errorf("clear: %w: %w", ErrIO, err)
	}

	for bank := range m.banks {
		m.banks[bank] = invalidBank("erased")
	}

	m.active = NoBank
	m.tie = false

	s.Clear()
	s.markClean()

	m.log.Info("both banks erased")

	return nil
}

// SelfTest writes n random bytes to the non-active bank, reads them back
// and compares. The active bank is never touched; the tested bank is left
// invalid and is overwritten by the next commit.
func (m *Manager) SelfTest(n int) error {
	if n <= 0 || n > m.dev.Size() {
		return fmt.Errorf("self-test length %d outside 1..%d: %w", n, m.dev.Size(), ErrCapacity)
	}

	target := 0
	if m.active != NoBank {
		target = 1 - m.active
	}

	pattern := make([]byte, n)
	for i := range pattern {
		pattern[i] = byte(rand.IntN(256))
	}

	// Never let the pattern pass as a section header.
	if _, ok := m.codec.ParseHeader(pattern); ok {
		pattern[offHdrCRC] ^= 0xFF
	}

	m.banks[target] = invalidBank("self-test pattern")

	err := m.dev.WriteBank(target, pattern)
	if err != nil {
		return fmt.Errorf("self-test write bank %d: %w: %w", target, ErrIO, err)
	}

	return m.verifyBank(target, pattern)
}
