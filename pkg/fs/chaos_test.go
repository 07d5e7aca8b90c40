package fs_test

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/calvinalkan/bootnv/pkg/fs"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	err := os.WriteFile(path, data, 0o600)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func Test_Chaos_Passes_Through_When_Config_Zero(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "img")
	writeFile(t, path, []byte("0123456789"))

	c := fs.NewChaos(fs.NewReal(), 1, &fs.ChaosConfig{})

	f, err := c.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}

	defer func() { _ = f.Close() }()

	_, err = f.WriteAt([]byte("ab"), 4)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 10)

	_, err = f.ReadAt(buf, 0)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := string(buf), "0123ab6789"; got != want {
		t.Errorf("content=%q, want=%q", got, want)
	}

	if got := c.TotalFaults(); got != 0 {
		t.Errorf("TotalFaults=%d, want=0", got)
	}
}

func Test_Chaos_Injects_Marked_Errno_When_Rate_Is_One(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "img")
	writeFile(t, path, []byte("0123456789"))

	c := fs.NewChaos(fs.NewReal(), 1, &fs.ChaosConfig{WriteFailRate: 1, SyncFailRate: 1})

	f, err := c.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}

	defer func() { _ = f.Close() }()

	n, err := f.WriteAt([]byte("ab"), 0)
	if err == nil || n != 0 {
		t.Fatalf("WriteAt n=%d err=%v, want injected failure", n, err)
	}

	if !fs.IsChaosErr(err) {
		t.Errorf("error not marked as injected: %v", err)
	}

	var errno syscall.Errno
	if !errors.As(err, &errno) {
		t.Errorf("error carries no errno: %v", err)
	}

	err = f.Sync()
	if !errors.Is(err, syscall.EIO) {
		t.Errorf("Sync err=%v, want EIO", err)
	}

	stats := c.Stats()
	if stats.WriteFails != 1 || stats.SyncFails != 1 {
		t.Errorf("stats=%+v", stats)
	}
}

func Test_Chaos_Lands_Prefix_When_Partial_Write_Injected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "img")
	writeFile(t, path, []byte("..........."))

	c := fs.NewChaos(fs.NewReal(), 7, &fs.ChaosConfig{PartialWriteRate: 1})

	f, err := c.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}

	defer func() { _ = f.Close() }()

	n, err := f.WriteAt([]byte("ABCDEFGHIJ"), 0)
	if err == nil {
		t.Fatal("expected injected error")
	}

	if n < 0 || n >= 10 {
		t.Fatalf("n=%d, want a strict prefix", n)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if want := "ABCDEFGHIJ"[:n] + "..........."[n:]; string(got) != want {
		t.Errorf("content=%q, want=%q", got, want)
	}
}

func Test_Chaos_Never_Injects_When_NoOp_Mode(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "img")
	writeFile(t, path, []byte("x"))

	c := fs.NewChaos(fs.NewReal(), 1, &fs.ChaosConfig{OpenFailRate: 1, ReadFailRate: 1, AtomicWriteFailRate: 1})
	c.SetMode(fs.ChaosModeNoOp)

	_, err := c.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	err = c.WriteFileAtomic(path, []byte("y"), 0o600)
	if err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	c.SetMode(fs.ChaosModeActive)

	err = c.WriteFileAtomic(path, []byte("z"), 0o600)
	if !fs.IsChaosErr(err) {
		t.Fatalf("err=%v, want injected", err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "y" {
		t.Errorf("content=%q, want %q (failed atomic write must not touch target)", got, "y")
	}
}
