package nvram_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/bootnv/pkg/flash"
	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// bootFixture loads whatever is on dev and builds a controller over it.
func bootFixture(t *testing.T, dev flash.Device, opts nvram.BootOptions) (*nvram.BootController, *nvram.Store, *nvram.Manager) {
	t.Helper()

	m := newManager(t, dev, nvram.ManagerOptions{})

	s, err := m.Init()
	require.NoError(t, err)

	if opts.Logger == nil {
		opts.Logger, _ = newLogger()
	}

	return nvram.NewBootController(s, m, opts), s, m
}

func value(t *testing.T, s *nvram.Store, key string) string {
	t.Helper()

	e, ok := s.Get(key)
	require.True(t, ok, "key %s missing", key)

	return e.Value
}

// persisted reloads dev from scratch and returns the value of key.
func persisted(t *testing.T, dev flash.Device, key string) string {
	t.Helper()

	m := newManager(t, dev, nvram.ManagerOptions{})

	s, err := m.Init()
	require.NoError(t, err)

	return value(t, s, key)
}

func Test_SelectSlot_Initializes_Defaults_When_Store_Empty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		partition int
		wantOrder string
		wantSlot  byte
		wantPart  int
	}{
		{name: "RunningPrimary", partition: 1, wantOrder: nvram.OrderAB, wantSlot: nvram.SlotA, wantPart: 1},
		{name: "RunningSecondary", partition: 2, wantOrder: nvram.OrderBA, wantSlot: nvram.SlotB, wantPart: 2},
		{name: "PartitionUnknown", partition: 0, wantOrder: nvram.OrderAB, wantSlot: nvram.SlotA, wantPart: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mem := newMem(t)
			bc, s, _ := bootFixture(t, mem, nvram.BootOptions{RunningPartition: tt.partition})

			assert.Equal(t, nvram.BootUninitialized, bc.State())

			sel, err := bc.SelectSlot()
			require.NoError(t, err)

			assert.Equal(t, tt.wantSlot, sel.Slot)
			assert.Equal(t, tt.wantPart, sel.Partition)
			assert.Equal(t, tt.wantOrder, sel.Order)
			assert.Equal(t, 2, sel.Left[tt.wantSlot])
			assert.Equal(t, nvram.BootReady, bc.State())

			assert.Equal(t, tt.wantOrder, value(t, s, nvram.KeyBootOrder))
			assert.False(t, s.Dirty())
			assert.Equal(t, tt.wantOrder, persisted(t, mem, nvram.KeyBootOrder))
		})
	}
}

func Test_SelectSlot_Falls_Through_To_Secondary_When_Primary_Exhausted(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	writeSection(t, mem, 0, 0,
		nvram.KeyBootOrder, "A B",
		nvram.KeyBootALeft, "0",
		nvram.KeyBootBLeft, "3",
	)

	bc, s, _ := bootFixture(t, mem, nvram.BootOptions{})

	sel, err := bc.SelectSlot()
	require.NoError(t, err)

	assert.Equal(t, nvram.SlotB, sel.Slot)
	assert.Equal(t, 2, sel.Partition)
	assert.Equal(t, map[byte]int{nvram.SlotA: 0, nvram.SlotB: 2}, sel.Left)

	assert.Equal(t, "2", value(t, s, nvram.KeyBootBLeft))
	assert.Equal(t, "2", persisted(t, mem, nvram.KeyBootBLeft))
	assert.Equal(t, "0", persisted(t, mem, nvram.KeyBootALeft))
}

func Test_SelectSlot_Prefers_Primary_In_Order(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	writeSection(t, mem, 0, 0,
		nvram.KeyBootOrder, "B A",
		nvram.KeyBootALeft, "3",
		nvram.KeyBootBLeft, "1",
	)

	bc, _, _ := bootFixture(t, mem, nvram.BootOptions{})

	sel, err := bc.SelectSlot()
	require.NoError(t, err)
	assert.Equal(t, nvram.SlotB, sel.Slot)
	assert.Equal(t, 0, sel.Left[nvram.SlotB])

	sel, err = bc.SelectSlot()
	require.NoError(t, err)
	assert.Equal(t, nvram.SlotA, sel.Slot)
	assert.Equal(t, 2, sel.Left[nvram.SlotA])
	assert.Equal(t, "2", persisted(t, mem, nvram.KeyBootALeft))
}

func Test_SelectSlot_Returns_ErrNoBootableSlot_When_Both_Counters_Zero(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	writeSection(t, mem, 0, 4,
		nvram.KeyBootOrder, "A B",
		nvram.KeyBootALeft, "0",
		nvram.KeyBootBLeft, "0",
	)

	bc, s, m := bootFixture(t, mem, nvram.BootOptions{})

	_, err := bc.SelectSlot()
	require.ErrorIs(t, err, nvram.ErrNoBootableSlot)
	assert.Equal(t, nvram.BootExhausted, bc.State())

	// Exhausted holds until an explicit reinit; nothing is written meanwhile.
	_, err = bc.SelectSlot()
	require.ErrorIs(t, err, nvram.ErrNoBootableSlot)

	assert.False(t, s.Dirty())
	assert.Equal(t, uint32(4), m.Status().Banks[0].Header.Counter)
	assert.Equal(t, 1, mem.Stats().Writes[0])
	assert.Equal(t, 0, mem.Stats().Writes[1])
}

func Test_SelectSlot_Reinitializes_When_Bookkeeping_Corrupt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kv   []string
	}{
		{name: "MissingOrder", kv: []string{nvram.KeyBootALeft, "1", nvram.KeyBootBLeft, "1"}},
		{name: "MissingLeft", kv: []string{nvram.KeyBootOrder, "A B", nvram.KeyBootALeft, "1"}},
		{name: "NonNumericLeft", kv: []string{nvram.KeyBootOrder, "A B", nvram.KeyBootALeft, "x", nvram.KeyBootBLeft, "1"}},
		{name: "NegativeLeft", kv: []string{nvram.KeyBootOrder, "A B", nvram.KeyBootALeft, "-1", nvram.KeyBootBLeft, "1"}},
		{name: "MalformedOrder", kv: []string{nvram.KeyBootOrder, "C D", nvram.KeyBootALeft, "1", nvram.KeyBootBLeft, "1"}},
		{name: "EmptyOrder", kv: []string{nvram.KeyBootOrder, "", nvram.KeyBootALeft, "1", nvram.KeyBootBLeft, "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mem := newMem(t)
			writeSection(t, mem, 0, 0, tt.kv...)

			bc, s, _ := bootFixture(t, mem, nvram.BootOptions{RunningPartition: 2, DefaultRetries: 5})

			sel, err := bc.SelectSlot()
			require.NoError(t, err)

			assert.Equal(t, nvram.SlotB, sel.Slot)
			assert.Equal(t, nvram.OrderBA, value(t, s, nvram.KeyBootOrder))
			assert.Equal(t, "5", value(t, s, nvram.KeyBootALeft))
			assert.Equal(t, "4", value(t, s, nvram.KeyBootBLeft))
		})
	}
}

func Test_ReinitializeDefaults_Allows_Two_Attempts_Then_Fails(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	bc, s, _ := bootFixture(t, mem, nvram.BootOptions{})

	require.NoError(t, bc.ReinitializeDefaults())
	require.NoError(t, s.Set(nvram.KeyBootALeft, "1"))
	require.NoError(t, bc.ReinitializeDefaults())
	assert.Equal(t, "3", value(t, s, nvram.KeyBootALeft))

	require.NoError(t, s.Set(nvram.KeyBootALeft, "junk"))

	err := bc.ReinitializeDefaults()
	require.ErrorIs(t, err, nvram.ErrNoBootableSlot)
	assert.Equal(t, "junk", value(t, s, nvram.KeyBootALeft), "exhausted reinit must not touch the store")
	assert.Equal(t, nvram.BootExhausted, bc.State())

	// SelectSlot shares the budget.
	_, err = bc.SelectSlot()
	require.ErrorIs(t, err, nvram.ErrNoBootableSlot)
}

func Test_SelectSlot_Succeeds_After_Explicit_Reinits_Repaired_State(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	writeSection(t, mem, 0, 0, nvram.KeyBootOrder, "garbage")

	bc, _, _ := bootFixture(t, mem, nvram.BootOptions{})

	require.NoError(t, bc.ReinitializeDefaults())
	require.NoError(t, bc.ReinitializeDefaults())

	// Defaults are valid now, so selection succeeds without a third reinit.
	sel, err := bc.SelectSlot()
	require.NoError(t, err)
	assert.Equal(t, nvram.SlotA, sel.Slot)
}

// countingCommitter commits nothing and fails after ok successes.
type countingCommitter struct {
	calls int
	ok    int
}

var errCommit = errors.New("commit failed")

func (c *countingCommitter) Commit(*nvram.Store) error {
	c.calls++
	if c.calls > c.ok {
		return errCommit
	}

	return nil
}

func Test_SelectSlot_Returns_No_Selection_When_Commit_Fails(t *testing.T) {
	t.Parallel()

	s := nvram.NewStore()
	require.NoError(t, s.Set(nvram.KeyBootOrder, "A B"))
	require.NoError(t, s.Set(nvram.KeyBootALeft, "3"))
	require.NoError(t, s.Set(nvram.KeyBootBLeft, "3"))

	logger, _ := newLogger()
	c := &countingCommitter{}
	bc := nvram.NewBootController(s, c, nvram.BootOptions{Logger: logger})

	sel, err := bc.SelectSlot()
	require.ErrorIs(t, err, errCommit)
	assert.Equal(t, nvram.Selection{}, sel)
	assert.NotEqual(t, nvram.BootReady, bc.State())
	assert.Equal(t, 1, c.calls)
	assert.Equal(t, "3", value(t, s, nvram.KeyBootALeft), "uncommitted attempt must be rolled back")
}

func Test_SelectSlot_Surfaces_ErrIO_From_Device(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	writeSection(t, mem, 0, 0,
		nvram.KeyBootOrder, "A B",
		nvram.KeyBootALeft, "3",
		nvram.KeyBootBLeft, "3",
	)

	faulty := flash.NewFaulty(mem, 11, flash.FaultConfig{WriteFailRate: 1})
	bc, _, _ := bootFixture(t, faulty, nvram.BootOptions{})

	_, err := bc.SelectSlot()
	require.ErrorIs(t, err, nvram.ErrIO)

	// The attempt was not consumed on flash.
	assert.Equal(t, "3", persisted(t, mem, nvram.KeyBootALeft))
}

func Test_SelectSlot_Consumes_One_Attempt_When_Retried_After_Power_Cut(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	writeSection(t, mem, 0, 0,
		nvram.KeyBootOrder, "A B",
		nvram.KeyBootALeft, "3",
		nvram.KeyBootBLeft, "3",
	)

	faulty := flash.NewFaulty(mem, 5, flash.FaultConfig{})
	bc, s, _ := bootFixture(t, faulty, nvram.BootOptions{})

	faulty.CutNextWrite(0)

	_, err := bc.SelectSlot()
	require.ErrorIs(t, err, nvram.ErrIO)
	assert.Equal(t, "3", value(t, s, nvram.KeyBootALeft))

	sel, err := bc.SelectSlot()
	require.NoError(t, err)
	assert.Equal(t, nvram.SlotA, sel.Slot)
	assert.Equal(t, 2, sel.Left[nvram.SlotA])
	assert.Equal(t, "2", value(t, s, nvram.KeyBootALeft))
	assert.Equal(t, "2", persisted(t, mem, nvram.KeyBootALeft))
}

func Test_SelectSlot_Recovers_After_Reinit_When_Exhausted(t *testing.T) {
	t.Parallel()

	mem := newMem(t)
	writeSection(t, mem, 0, 0,
		nvram.KeyBootOrder, "A B",
		nvram.KeyBootALeft, "0",
		nvram.KeyBootBLeft, "0",
	)

	bc, _, _ := bootFixture(t, mem, nvram.BootOptions{})

	_, err := bc.SelectSlot()
	require.ErrorIs(t, err, nvram.ErrNoBootableSlot)
	require.Equal(t, nvram.BootExhausted, bc.State())

	require.NoError(t, bc.ReinitializeDefaults())
	assert.NotEqual(t, nvram.BootExhausted, bc.State())

	sel, err := bc.SelectSlot()
	require.NoError(t, err)
	assert.Equal(t, nvram.SlotA, sel.Slot)
	assert.Equal(t, nvram.BootReady, bc.State())
	assert.Equal(t, "2", persisted(t, mem, nvram.KeyBootALeft))

	// The budget still holds: one more reinit, then the third is terminal.
	require.NoError(t, bc.ReinitializeDefaults())

	err = bc.ReinitializeDefaults()
	require.ErrorIs(t, err, nvram.ErrNoBootableSlot)
	assert.Equal(t, nvram.BootExhausted, bc.State())
}

func Test_ReinitializeDefaults_Counts_Attempt_When_Commit_Fails(t *testing.T) {
	t.Parallel()

	logger, _ := newLogger()
	c := &countingCommitter{}
	bc := nvram.NewBootController(nvram.NewStore(), c, nvram.BootOptions{Logger: logger})

	require.ErrorIs(t, bc.ReinitializeDefaults(), errCommit)
	require.ErrorIs(t, bc.ReinitializeDefaults(), errCommit)

	err := bc.ReinitializeDefaults()
	require.ErrorIs(t, err, nvram.ErrNoBootableSlot)
	assert.Equal(t, 2, c.calls)
}

func Test_SelectSlot_Fails_When_Defaults_Cannot_Be_Committed(t *testing.T) {
	t.Parallel()

	logger, _ := newLogger()
	c := &countingCommitter{}
	bc := nvram.NewBootController(nvram.NewStore(), c, nvram.BootOptions{Logger: logger})

	_, err := bc.SelectSlot()
	require.ErrorIs(t, err, errCommit)
	assert.Equal(t, 1, c.calls)
}

func Test_BootState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "uninitialized", nvram.BootUninitialized.String())
	assert.Equal(t, "initializing", nvram.BootInitializing.String())
	assert.Equal(t, "ready", nvram.BootReady.String())
	assert.Equal(t, "exhausted", nvram.BootExhausted.String())
	assert.Equal(t, "BootState(9)", nvram.BootState(9).String())
}
