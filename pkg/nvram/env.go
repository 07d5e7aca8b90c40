package nvram

import (
	"encoding/binary"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/bootnv/pkg/flash"
)

// Options configures [Open].
type Options struct {
	// MaxDataSize caps the data region of a section. Zero selects
	// [DefaultMaxDataSize].
	MaxDataSize int

	// ByteOrder is the wire byte order. Nil selects little-endian.
	ByteOrder binary.ByteOrder

	// VerifyWrites reads every commit back.
	VerifyWrites bool

	// Boot configures slot selection.
	Boot BootOptions

	// Stamps are written on every Open, in order, and committed if any
	// changed. Typical stamps record the bootloader version.
	Stamps []Entry

	// Logger is shared by the manager and the boot controller. Nil selects
	// logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Env is an opened nvram: one device, its manager, the loaded store and a
// boot controller over it.
//
// Env is not safe for concurrent use; callers that share one must serialize
// access themselves.
type Env struct {
	dev   flash.Device
	mgr   *Manager
	store *Store
	boot  *BootController
	log   logrus.FieldLogger
}

// Open loads the authoritative section from dev and applies stamps.
//
// Env takes ownership of dev; [Env.Close] closes it. On error dev is left
// open for the caller to close.
func Open(dev flash.Device, opts Options) (*Env, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mgr, err := NewManager(dev, ManagerOptions{
		MaxDataSize:  opts.MaxDataSize,
		ByteOrder:    opts.ByteOrder,
		VerifyWrites: opts.VerifyWrites,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := mgr.Init()
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	bootOpts := opts.Boot
	if bootOpts.Logger == nil {
		bootOpts.Logger = logger
	}

	env := &Env{
		dev:   dev,
		mgr:   mgr,
		store: store,
		boot:  NewBootController(store, mgr, bootOpts),
		log:   logger,
	}

	env.stamp(opts.Stamps)

	return env, nil
}

// stamp records opts.Stamps. Failures are logged, not returned: a stamp
// that cannot be written must not prevent booting. An uncommitted stamp
// rides along with the next successful commit.
func (e *Env) stamp(stamps []Entry) {
	for _, s := range stamps {
		err := e.store.Set(s.Key, s.Value)
		if err != nil {
			e.log.WithError(err).WithField("key", s.Key).Warn("skipping stamp")
		}
	}

	err := e.mgr.Commit(e.store)
	if err != nil {
		e.log.WithError(err).Warn("failed to commit stamps")
	}
}

// Get returns the value stored under key, or [ErrNotFound].
func (e *Env) Get(key string) (string, error) {
	entry, ok := e.store.Get(key)
	if !ok {
		return "", fmt.Errorf("%q: %w", key, ErrNotFound)
	}

	return entry.Value, nil
}

// Set stores value under key in memory. Call [Env.Commit] to persist.
func (e *Env) Set(key, value string) error {
	err := e.store.Set(key, value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	return nil
}

// Delete removes key in memory, or returns [ErrNotFound].
func (e *Env) Delete(key string) error {
	if !e.store.TryRemove(key) {
		return fmt.Errorf("%q: %w", key, ErrNotFound)
	}

	return nil
}

// List returns all entries in storage order.
func (e *Env) List() []Entry {
	return e.store.Entries()
}

// Dirty reports whether there are uncommitted changes.
func (e *Env) Dirty() bool {
	return e.store.Dirty()
}

// Commit persists pending changes. See [Manager.Commit].
func (e *Env) Commit() error {
	return e.mgr.Commit(e.store)
}

// Clear erases both banks and empties the store. See [Manager.Clear].
func (e *Env) Clear() error {
	return e.mgr.Clear(e.store)
}

// SelectBootSlot picks and commits the next boot attempt. See
// [BootController.SelectSlot].
func (e *Env) SelectBootSlot() (Selection, error) {
	return e.boot.SelectSlot()
}

// ReinitializeDefaults resets the boot bookkeeping. See
// [BootController.ReinitializeDefaults].
func (e *Env) ReinitializeDefaults() error {
	return e.boot.ReinitializeDefaults()
}

// BootState returns the boot controller's state.
func (e *Env) BootState() BootState {
	return e.boot.State()
}

// Status returns the manager's view of both banks.
func (e *Env) Status() Status {
	return e.mgr.Status()
}

// SelfTest exercises the non-active bank with n random bytes. See
// [Manager.SelfTest].
func (e *Env) SelfTest(n int) error {
	return e.mgr.SelfTest(n)
}

// Close releases the device. Uncommitted changes are discarded.
func (e *Env) Close() error {
	if e.store.Dirty() {
		e.log.WithField("entries", e.store.Len()).Warn("closing with uncommitted changes")
	}

	err := e.dev.Close()
	if err != nil {
		return fmt.Errorf("close device: %w", err)
	}

	return nil
}
