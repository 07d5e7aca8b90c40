package nvram

// MaxEntryLen is the longest key or value the wire format accepts.
//
// Length fields of entryLenSentinel (MaxEntryLen+1) or more are rejected on
// both encode and decode.
const MaxEntryLen = 255

const entryLenSentinel = MaxEntryLen + 1

// Entry is one key/value pair.
type Entry struct {
	Key   string
	Value string
}

// Store is an ordered key/value collection with a dirty flag.
//
// Keys are unique. Insertion order is preserved so that serialization is
// deterministic. Only mutations set dirty, and only a successful
// [Manager.Commit] clears it.
//
// The zero value is an empty store ready to use. Store is not safe for
// concurrent use.
type Store struct {
	entries []Entry
	index   map[string]int
	dirty   bool
}

// NewStore returns an empty, clean store.
func NewStore() *Store {
	return &Store{index: make(map[string]int)}
}

// Set inserts or replaces the value for key.
//
// Setting a key to the value it already holds is a no-op and leaves dirty
// unchanged. Replacing a value keeps the entry's position. Returns
// [ErrValueTooLong] if key or value exceeds [MaxEntryLen] bytes.
func (s *Store) Set(key, value string) error {
	if len(key) > MaxEntryLen || len(value) > MaxEntryLen {
		return ErrValueTooLong
	}

	if s.index == nil {
		s.index = make(map[string]int)
	}

	if i, ok := s.index[key]; ok {
		if s.entries[i].Value == value {
			return nil
		}

		s.entries[i].Value = value
		s.dirty = true

		return nil
	}

	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Value: value})
	s.dirty = true

	return nil
}

// Get returns the entry for key.
func (s *Store) Get(key string) (Entry, bool) {
	i, ok := s.index[key]
	if !ok {
		return Entry{}, false
	}

	return s.entries[i], true
}

// Remove deletes key if present. Removing an absent key is a no-op.
func (s *Store) Remove(key string) {
	s.TryRemove(key)
}

// TryRemove deletes key and reports whether it was present.
func (s *Store) TryRemove(key string) bool {
	i, ok := s.index[key]
	if !ok {
		return false
	}

	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.index, key)

	for j := i; j < len(s.entries); j++ {
		s.index[s.entries[j].Key] = j
	}

	s.dirty = true

	return true
}

// Clear removes all entries and marks the store dirty.
func (s *Store) Clear() {
	s.entries = nil
	s.index = make(map[string]int)
	s.dirty = true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)

	return out
}

// Dirty reports whether the store has uncommitted mutations.
func (s *Store) Dirty() bool {
	return s.dirty
}

// Equal reports whether both stores hold the same entries in the same order.
// The dirty flag is not compared.
func (s *Store) Equal(other *Store) bool {
	if len(s.entries) != len(other.entries) {
		return false
	}

	for i := range s.entries {
		if s.entries[i] != other.entries[i] {
			return false
		}
	}

	return true
}

func (s *Store) markClean() {
	s.dirty = false
}

// appendDecoded adds an entry read from flash without touching dirty.
// A repeated key is dropped; lookups on flash images written by older
// tools always resolved to the first occurrence.
func (s *Store) appendDecoded(key, value string) {
	if s.index == nil {
		s.index = make(map[string]int)
	}

	if _, ok := s.index[key]; ok {
		return
	}

	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Value: value})
}
