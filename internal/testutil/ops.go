// Package testutil provides generated operation streams and a reference
// model for nvram behavior tests.
package testutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/bootnv/pkg/nvram"
)

// Op is a behavior test operation applied to both the real environment
// and the model. Apply returns an error describing any divergence.
type Op interface {
	Apply(h *Harness) error
	String() string
}

// SetOp sets Key to Value in memory.
type SetOp struct {
	Key   string
	Value string
}

func (op SetOp) Apply(h *Harness) error {
	return sameError(op, h.Model.Set(op.Key, op.Value), h.Env.Set(op.Key, op.Value))
}

func (op SetOp) String() string {
	return fmt.Sprintf("set %s (%d bytes)", op.Key, len(op.Value))
}

// DeleteOp removes Key in memory.
type DeleteOp struct {
	Key string
}

func (op DeleteOp) Apply(h *Harness) error {
	return sameError(op, h.Model.Delete(op.Key), h.Env.Delete(op.Key))
}

func (op DeleteOp) String() string {
	return "delete " + op.Key
}

// CommitOp commits pending changes.
type CommitOp struct{}

func (op CommitOp) Apply(h *Harness) error {
	return sameError(op, h.Model.Commit(true), h.Env.Commit())
}

func (CommitOp) String() string {
	return "commit"
}

// CutCommitOp commits with a power cut armed after At bytes.
type CutCommitOp struct {
	At int
}

func (op CutCommitOp) Apply(h *Harness) error {
	wantDirty := h.Model.Dirty()
	fits := h.Model.DataSize() <= h.Model.Capacity

	h.Dev.CutNextWrite(op.At)
	err := h.Env.Commit()
	h.Dev.Disarm()

	if !wantDirty || !fits {
		return sameError(op, h.Model.Commit(true), err)
	}

	return sameError(op, h.Model.Commit(false), err)
}

func (op CutCommitOp) String() string {
	return fmt.Sprintf("commit (power cut after %d bytes)", op.At)
}

// ClearOp erases both banks.
type ClearOp struct{}

func (op ClearOp) Apply(h *Harness) error {
	h.Model.Clear()

	return sameError(op, nil, h.Env.Clear())
}

func (ClearOp) String() string {
	return "clear"
}

// ReopenOp reopens the medium and checks the loaded store is one of the
// snapshots the model allows.
type ReopenOp struct{}

func (op ReopenOp) Apply(h *Harness) error {
	h.Reopen()

	got := h.Env.List()
	if !h.Model.Reopen(got) {
		return fmt.Errorf("%s: loaded %v, want one of %v", op, got, h.Model.Persisted())
	}

	return nil
}

func (ReopenOp) String() string {
	return "reopen"
}

// errorKinds are the sentinels behavior tests distinguish.
var errorKinds = []error{
	nvram.ErrFormat,
	nvram.ErrCapacity,
	nvram.ErrIO,
	nvram.ErrNotFound,
}

// sameError compares a model error with a real one by sentinel.
func sameError(op Op, modelErr, realErr error) error {
	if (modelErr == nil) != (realErr == nil) {
		return fmt.Errorf("%s: model err=%v, real err=%v", op, modelErr, realErr)
	}

	for _, kind := range errorKinds {
		if errors.Is(modelErr, kind) != errors.Is(realErr, kind) {
			return fmt.Errorf("%s: model err=%v, real err=%v", op, modelErr, realErr)
		}
	}

	return nil
}

// FormatOps renders an operation history for failure messages.
func FormatOps(ops []string) string {
	var b strings.Builder

	b.WriteString("operations:\n")

	for i, op := range ops {
		fmt.Fprintf(&b, "  %3d: %s\n", i+1, op)
	}

	return b.String()
}
