package nvram

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Boot bookkeeping keys.
const (
	KeyBootOrder = "BOOT_ORDER"
	KeyBootALeft = "BOOT_A_LEFT"
	KeyBootBLeft = "BOOT_B_LEFT"
)

// Slot letters and the orders BOOT_ORDER may hold.
const (
	SlotA byte = 'A'
	SlotB byte = 'B'

	OrderAB = "A B"
	OrderBA = "B A"
)

// DefaultRetries is the per-slot boot attempt budget written by defaults.
const DefaultRetries = 3

// PartitionSecondary is the running partition number that selects
// [OrderBA] as the default order. Any other value selects [OrderAB].
const PartitionSecondary = 2

// maxReinitializations bounds default reinitializations per controller.
const maxReinitializations = 2

// BootState is the controller's lifecycle state.
type BootState int

const (
	BootUninitialized BootState = iota
	BootInitializing
	BootReady
	BootExhausted
)

func (s BootState) String() string {
	switch s {
	case BootUninitialized:
		return "uninitialized"
	case BootInitializing:
		return "initializing"
	case BootReady:
		return "ready"
	case BootExhausted:
		return "exhausted"
	default:
		return "BootState(" + strconv.Itoa(int(s)) + ")"
	}
}

// Committer persists a store. [*Manager] implements it.
type Committer interface {
	Commit(s *Store) error
}

// BootOptions configures a [BootController].
type BootOptions struct {
	// DefaultRetries is written to both retry counters on reinitialization.
	// Zero selects [DefaultRetries].
	DefaultRetries int

	// RunningPartition is the partition the bootloader is running from
	// (1 = A, 2 = B). It picks the default BOOT_ORDER.
	RunningPartition int

	// Logger receives reinitialization notices. Nil selects
	// logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Selection is the outcome of a successful [BootController.SelectSlot].
type Selection struct {
	// Slot is the chosen slot letter, [SlotA] or [SlotB].
	Slot byte

	// Partition is the boot partition number for Slot (A = 1, B = 2).
	Partition int

	// Order is the BOOT_ORDER in effect.
	Order string

	// Left holds both retry counters after the decrement.
	Left map[byte]int
}

// BootController implements A/B slot selection with bounded retries on top
// of a loaded store.
//
// Every successful selection consumes one attempt of the chosen slot and
// commits that before returning, so a crash during the following boot
// still counts against the slot.
type BootController struct {
	store   *Store
	commit  Committer
	retries int
	order   string
	log     logrus.FieldLogger

	state   BootState
	reinits int
}

// NewBootController returns a controller over store. Commits go through c.
func NewBootController(store *Store, c Committer, opts BootOptions) *BootController {
	retries := opts.DefaultRetries
	if retries <= 0 {
		retries = DefaultRetries
	}

	order := OrderAB
	if opts.RunningPartition == PartitionSecondary {
		order = OrderBA
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &BootController{
		store:   store,
		commit:  c,
		retries: retries,
		order:   order,
		log:     logger,
	}
}

// State returns the current lifecycle state.
func (b *BootController) State() BootState {
	return b.state
}

// SelectSlot picks the slot to boot and commits the consumed attempt.
//
// Missing keys, unparsable counters and a malformed BOOT_ORDER are treated
// as corrupted bookkeeping and trigger [BootController.ReinitializeDefaults].
// The first slot in BOOT_ORDER with attempts left wins; otherwise the
// second. Returns [ErrNoBootableSlot] if neither has attempts left or the
// reinitialization budget is spent, and [ErrIO] if a commit fails.
func (b *BootController) SelectSlot() (Selection, error) {
	if b.state == BootExhausted {
		return Selection{}, ErrNoBootableSlot
	}

	b.state = BootInitializing

	var (
		order string
		left  map[byte]int
	)

	for {
		var err error

		order, left, err = b.readKeys()
		if err == nil {
			break
		}

		b.log.WithError(err).Warn("boot bookkeeping invalid, initializing defaults")

		err = b.ReinitializeDefaults()
		if err != nil {
			return Selection{}, err
		}
	}

	slot, ok := pickSlot(order, left)
	if !ok {
		b.state = BootExhausted
		b.log.WithField("order", order).Error("no slot has boot attempts left")

		return Selection{}, fmt.Errorf("order %q, A=%d, B=%d: %w", order, left[SlotA], left[SlotB], ErrNoBootableSlot)
	}

	key := leftKey(slot)
	prev, _ := b.store.Get(key)

	left[slot]--

	err := b.store.Set(key, strconv.Itoa(left[slot]))
	if err != nil {
		return Selection{}, err
	}

	err = b.commit.Commit(b.store)
	if err != nil {
		// The attempt is only consumed once it is on flash. A retry
		// decrements from the committed value again.
		_ = b.store.Set(key, prev.Value)

		return Selection{}, fmt.Errorf("commit boot attempt: %w", err)
	}

	b.state = BootReady

	b.log.WithFields(logrus.Fields{
		"slot": string(slot),
		"left": left[slot],
	}).Info("boot slot selected")

	return Selection{
		Slot:      slot,
		Partition: partition(slot),
		Order:     order,
		Left:      left,
	}, nil
}

// ReinitializeDefaults writes BOOT_ORDER from the running partition and both
// retry counters at the default budget, then commits.
//
// At most two reinitializations are allowed per controller, shared with the
// ones [BootController.SelectSlot] performs. An attempt whose commit fails
// still counts. Past that it returns [ErrNoBootableSlot] without touching
// the store. A committed reinitialization leaves the exhausted state, so
// the next [BootController.SelectSlot] picks from the fresh counters.
func (b *BootController) ReinitializeDefaults() error {
	if b.reinits >= maxReinitializations {
		b.state = BootExhausted

		return fmt.Errorf("defaults already initialized %d times: %w", b.reinits, ErrNoBootableSlot)
	}

	b.reinits++

	retries := strconv.Itoa(b.retries)

	err := errors.Join(
		b.store.Set(KeyBootOrder, b.order),
		b.store.Set(KeyBootALeft, retries),
		b.store.Set(KeyBootBLeft, retries),
	)
	if err != nil {
		return err
	}

	err = b.commit.Commit(b.store)
	if err != nil {
		return fmt.Errorf("commit boot defaults: %w", err)
	}

	if b.state == BootExhausted {
		b.state = BootUninitialized
	}

	b.log.WithFields(logrus.Fields{
		"order":   b.order,
		"retries": b.retries,
	}).Info("boot defaults initialized")

	return nil
}

// readKeys returns the order and both retry counters, or an error if any
// key is missing or malformed.
func (b *BootController) readKeys() (string, map[byte]int, error) {
	order, ok := b.store.Get(KeyBootOrder)
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", KeyBootOrder, ErrNotFound)
	}

	if order.Value != OrderAB && order.Value != OrderBA {
		return "", nil, fmt.Errorf("%s=%q: %w", KeyBootOrder, order.Value, ErrParse)
	}

	left := make(map[byte]int, 2)

	for _, slot := range []byte{SlotA, SlotB} {
		key := leftKey(slot)

		e, ok := b.store.Get(key)
		if !ok {
			return "", nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		n, err := strconv.ParseUint(e.Value, 10, 31)
		if err != nil {
			return "", nil, fmt.Errorf("%s=%q: %w", key, e.Value, ErrParse)
		}

		left[slot] = int(n)
	}

	return order.Value, left, nil
}

// pickSlot returns the first slot in order with attempts left.
func pickSlot(order string, left map[byte]int) (byte, bool) {
	primary, secondary := order[0], order[2]

	switch {
	case left[primary] > 0:
		return primary, true
	case left[secondary] > 0:
		return secondary, true
	default:
		return 0, false
	}
}

func leftKey(slot byte) string {
	if slot == SlotB {
		return KeyBootBLeft
	}

	return KeyBootALeft
}

func partition(slot byte) int {
	if slot == SlotB {
		return 2
	}

	return 1
}
