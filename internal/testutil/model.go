package testutil

import (
	"slices"

	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// entryOverhead is the on-flash length prefix of one entry.
const entryOverhead = 8

// Model is a reference nvram: an ordered in-memory store plus the
// snapshots that may be on flash.
//
// After a successful commit exactly one snapshot is persisted. A commit cut
// by power loss may or may not have landed, so two candidates remain until
// the next reopen resolves which one survived.
type Model struct {
	Capacity int

	entries   []nvram.Entry
	dirty     bool
	persisted [][]nvram.Entry
}

// NewModel returns an empty, clean model for the given data capacity.
func NewModel(capacity int) *Model {
	return &Model{
		Capacity:  capacity,
		persisted: [][]nvram.Entry{nil},
	}
}

// Entries returns the in-memory entries in storage order.
func (m *Model) Entries() []nvram.Entry {
	return slices.Clone(m.entries)
}

// Dirty reports whether the model has uncommitted changes.
func (m *Model) Dirty() bool {
	return m.dirty
}

// Persisted returns the snapshots flash may hold.
func (m *Model) Persisted() [][]nvram.Entry {
	return m.persisted
}

// Set applies a set. It returns [nvram.ErrValueTooLong] for oversize
// input, like the real store.
func (m *Model) Set(key, value string) error {
	if len(key) > nvram.MaxEntryLen || len(value) > nvram.MaxEntryLen {
		return nvram.ErrValueTooLong
	}

	i := m.index(key)
	if i < 0 {
		m.entries = append(m.entries, nvram.Entry{Key: key, Value: value})
		m.dirty = true

		return nil
	}

	if m.entries[i].Value != value {
		m.entries[i].Value = value
		m.dirty = true
	}

	return nil
}

// Delete removes key, or returns [nvram.ErrNotFound].
func (m *Model) Delete(key string) error {
	i := m.index(key)
	if i < 0 {
		return nvram.ErrNotFound
	}

	m.entries = slices.Delete(m.entries, i, i+1)
	m.dirty = true

	return nil
}

// DataSize returns the serialized data size of the in-memory entries.
func (m *Model) DataSize() int {
	n := 0
	for _, e := range m.entries {
		n += entryOverhead + len(e.Key) + len(e.Value)
	}

	return n
}

// Commit predicts a commit. landed=false models a power cut: the snapshot
// becomes a candidate next to the last good one and the model stays dirty.
func (m *Model) Commit(landed bool) error {
	if !m.dirty {
		return nil
	}

	if m.DataSize() > m.Capacity {
		return nvram.ErrCapacity
	}

	if !landed {
		m.persisted = [][]nvram.Entry{m.persisted[0], m.Entries()}

		return nvram.ErrIO
	}

	m.persisted = [][]nvram.Entry{m.Entries()}
	m.dirty = false

	return nil
}

// Clear models erasing both banks.
func (m *Model) Clear() {
	m.entries = nil
	m.dirty = false
	m.persisted = [][]nvram.Entry{nil}
}

// Reopen resolves the persisted candidates against what a reopened store
// loaded. It reports false if got matches none of them.
func (m *Model) Reopen(got []nvram.Entry) bool {
	for _, candidate := range m.persisted {
		if entriesEqual(candidate, got) {
			m.entries = slices.Clone(got)
			m.dirty = false
			m.persisted = [][]nvram.Entry{slices.Clone(got)}

			return true
		}
	}

	return false
}

func (m *Model) index(key string) int {
	return slices.IndexFunc(m.entries, func(e nvram.Entry) bool { return e.Key == key })
}

func entriesEqual(a, b []nvram.Entry) bool {
	return slices.Equal(a, b)
}
