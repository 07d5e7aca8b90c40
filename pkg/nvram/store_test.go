package nvram

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Store_Set_Appends_New_Keys_In_Insertion_Order(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("c", "3"))

	want := []Entry{{"b", "2"}, {"a", "1"}, {"c", "3"}}
	if diff := cmp.Diff(want, s.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	assert.True(t, s.Dirty())
}

func Test_Store_Set_Replaces_In_Place_When_Key_Exists(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("a", "1"))
	require.NoError(t, s.Set("b", "2"))
	require.NoError(t, s.Set("a", "9"))

	want := []Entry{{"a", "9"}, {"b", "2"}}
	if diff := cmp.Diff(want, s.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func Test_Store_Set_Leaves_Store_Clean_When_Value_Unchanged(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("BOOT_ORDER", "A B"))
	s.markClean()

	require.NoError(t, s.Set("BOOT_ORDER", "A B"))

	assert.False(t, s.Dirty(), "idempotent set must not dirty a clean store")
}

func Test_Store_Set_Returns_ErrValueTooLong_When_Key_Or_Value_Exceeds_255_Bytes(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", MaxEntryLen+1)
	max := strings.Repeat("x", MaxEntryLen)

	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
	}{
		{name: "KeyAtLimit", key: max, value: "v"},
		{name: "ValueAtLimit", key: "k", value: max},
		{name: "EmptyBoth", key: "", value: ""},
		{name: "KeyTooLong", key: long, value: "v", wantErr: true},
		{name: "ValueTooLong", key: "k", value: long, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewStore()
			err := s.Set(tt.key, tt.value)

			if !tt.wantErr {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, ErrValueTooLong)
			require.ErrorIs(t, err, ErrFormat)
			assert.Equal(t, 0, s.Len())
			assert.False(t, s.Dirty())
		})
	}
}

func Test_Store_TryRemove_Reports_Presence_And_Keeps_Order(t *testing.T) {
	t.Parallel()

	s := NewStore()
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.Set(k, k))
	}

	s.markClean()

	assert.False(t, s.TryRemove("missing"))
	assert.False(t, s.Dirty(), "removing an absent key must not dirty")

	assert.True(t, s.TryRemove("b"))
	assert.True(t, s.Dirty())

	// Lookups after the removed entry must still resolve.
	e, ok := s.Get("d")
	require.True(t, ok)
	assert.Equal(t, "d", e.Value)

	want := []Entry{{"a", "a"}, {"c", "c"}, {"d", "d"}}
	if diff := cmp.Diff(want, s.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}
}

func Test_Store_Clear_Empties_And_Dirties(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("a", "1"))
	s.markClean()

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Dirty())

	_, ok := s.Get("a")
	assert.False(t, ok)
}

func Test_Store_Zero_Value_Is_Usable(t *testing.T) {
	t.Parallel()

	var s Store

	_, ok := s.Get("a")
	assert.False(t, ok)
	assert.False(t, s.TryRemove("a"))

	require.NoError(t, s.Set("a", "1"))

	e, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", e.Value)
}

func Test_Store_Entries_Returns_Copy(t *testing.T) {
	t.Parallel()

	s := NewStore()
	require.NoError(t, s.Set("a", "1"))

	entries := s.Entries()
	entries[0].Value = "changed"

	e, _ := s.Get("a")
	assert.Equal(t, "1", e.Value)
}

func Test_Store_AppendDecoded_Keeps_First_Occurrence(t *testing.T) {
	t.Parallel()

	s := NewStore()
	s.appendDecoded("a", "first")
	s.appendDecoded("b", "x")
	s.appendDecoded("a", "second")

	want := []Entry{{"a", "first"}, {"b", "x"}}
	if diff := cmp.Diff(want, s.Entries()); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	assert.False(t, s.Dirty())
}

func Test_Errors_Refinements_Wrap_Their_Category(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.Is(ErrInvalidFormat, ErrFormat))
	assert.True(t, errors.Is(ErrBufferTooSmall, ErrCapacity))
	assert.False(t, errors.Is(ErrValueTooLong, ErrCapacity))
}
