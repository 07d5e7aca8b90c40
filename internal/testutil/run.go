package testutil

import (
	"fmt"
	"slices"
	"testing"
)

// RunConfig configures a behavior test run.
type RunConfig struct {
	// MaxOps is the maximum number of operations to execute.
	MaxOps int

	// Harness sizes the device under test.
	Harness HarnessConfig

	// Gen configures the operation mix.
	Gen OpGenConfig
}

// DefaultRunConfig returns a balanced configuration for behavior tests.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxOps:  200,
		Harness: DefaultHarnessConfig(),
		Gen:     DefaultOpGenConfig(),
	}
}

// RunBehavior executes the operations derived from seed against a real
// environment and the model, comparing them after every operation. A
// final reopen checks that what is on flash matches the model.
func RunBehavior(tb testing.TB, seed []byte, cfg RunConfig) {
	tb.Helper()

	if cfg.MaxOps <= 0 {
		tb.Fatalf("RunBehavior requires MaxOps > 0")
	}

	h := NewHarness(tb, cfg.Harness)
	gen := NewOpGenerator(seed, &cfg.Gen)
	history := make([]string, 0, cfg.MaxOps+1)

	apply := func(op Op) {
		history = append(history, op.String())

		err := op.Apply(h)
		if err == nil {
			err = CompareState(h)
		}

		if err != nil {
			tb.Fatalf("%v\n%s", err, FormatOps(history))
		}
	}

	for opIndex := 1; opIndex <= cfg.MaxOps && gen.HasMore(); opIndex++ {
		apply(gen.NextOp())
	}

	apply(ReopenOp{})
}

// CompareState checks the in-memory view of the real environment against
// the model.
func CompareState(h *Harness) error {
	got, want := h.Env.List(), h.Model.Entries()
	if !slices.Equal(got, want) {
		return fmt.Errorf("entries differ:\nreal:  %v\nmodel: %v", got, want)
	}

	if got, want := h.Env.Dirty(), h.Model.Dirty(); got != want {
		return fmt.Errorf("dirty=%v, model dirty=%v", got, want)
	}

	return nil
}
