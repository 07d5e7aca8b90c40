package testutil

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/bootnv/pkg/flash"
	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// HarnessConfig sizes the device under test.
type HarnessConfig struct {
	// BankSize is the size of each in-memory bank.
	BankSize int

	// VerifyWrites is passed through to [nvram.Options].
	VerifyWrites bool
}

// DefaultHarnessConfig returns small banks, so that capacity errors are
// reachable with a handful of long values.
func DefaultHarnessConfig() HarnessConfig {
	return HarnessConfig{BankSize: 2048}
}

// Harness wires together a real [nvram.Env] on an in-memory device and
// the reference [Model].
type Harness struct {
	TB    testing.TB
	Mem   *flash.Mem
	Dev   *flash.Faulty
	Env   *nvram.Env
	Model *Model

	cfg HarnessConfig
	log *logrus.Logger
}

// NewHarness creates a harness over an erased device.
func NewHarness(tb testing.TB, cfg HarnessConfig) *Harness {
	tb.Helper()

	mem, err := flash.NewMem(flash.MemOptions{BankSize: cfg.BankSize})
	if err != nil {
		tb.Fatalf("new mem: %v", err)
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &Harness{
		TB:    tb,
		Mem:   mem,
		Model: NewModel(cfg.BankSize - nvram.HeaderSize),
		cfg:   cfg,
		log:   log,
	}

	h.open()

	tb.Cleanup(func() {
		if h.Env != nil {
			_ = h.Env.Close()
		}
	})

	return h
}

func (h *Harness) open() {
	h.TB.Helper()

	h.Dev = flash.NewFaulty(h.Mem, 0, flash.FaultConfig{})

	env, err := nvram.Open(h.Dev, nvram.Options{
		MaxDataSize:  h.cfg.BankSize,
		VerifyWrites: h.cfg.VerifyWrites,
		Logger:       h.log,
	})
	if err != nil {
		h.TB.Fatalf("open: %v", err)
	}

	h.Env = env
}

// Reopen closes the environment and opens the same medium again, like a
// reboot.
func (h *Harness) Reopen() {
	h.TB.Helper()

	err := h.Env.Close()
	if err != nil {
		h.TB.Fatalf("close: %v", err)
	}

	h.Env = nil
	h.Mem.Reopen()
	h.open()
}
