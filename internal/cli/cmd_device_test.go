package cli_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/bootnv/internal/cli"
)

func Test_Dump_Writes_Active_Bank_When_No_Bank_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "FOO", "bar")

	out := filepath.Join(c.Dir, "bank.bin")
	stdout := c.MustRun("dump", out)
	cli.AssertContains(t, stdout, "from bank 0 to "+out)

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	img := c.ReadImage()
	if !bytes.Equal(got, img[:len(img)/2]) {
		t.Error("dump differs from bank 0")
	}
}

func Test_Dump_Writes_Requested_Bank_When_Bank_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "FOO", "bar")

	out := filepath.Join(c.Dir, "bank1.bin")
	c.MustRun("dump", out, "--bank", "1")

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(got, bytes.Repeat([]byte{0xFF}, len(got))) {
		t.Error("bank 1 should still be erased")
	}
}

func Test_Dump_Fails_When_Bank_Out_Of_Range(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("dump", filepath.Join(c.Dir, "x.bin"), "--bank", "2")

	cli.AssertContains(t, stderr, "bank 2")
}

func Test_SelfTest_Passes_And_Keeps_Active_Bank_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "FOO", "bar")

	if got, want := c.MustRun("test", "64"), "self-test passed: 64 B"; got != want {
		t.Errorf("test=%q, want=%q", got, want)
	}

	if got, want := c.MustRun("get", "FOO"), "bar"; got != want {
		t.Errorf("get=%q, want=%q", got, want)
	}

	cli.AssertContains(t, c.MustRun("info"), "active=bank 0")

	// The next commit overwrites the tested bank.
	c.MustRun("set", "FOO", "baz")
	cli.AssertContains(t, c.MustRun("info"), "bank 1: valid counter=1")
}

func Test_SelfTest_Fails_When_Length_Out_Of_Range(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, n := range []string{"0", "4097"} {
		stderr := c.MustFail("test", n)
		cli.AssertContains(t, stderr, "capacity exceeded")
	}
}

func Test_Image_Create_Writes_Erased_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	path := filepath.Join(c.Dir, "new.img")

	stdout := c.MustRun("image", "create", path, "--size", "16KiB")
	cli.AssertContains(t, stdout, "created "+path+" (16 KiB, 2 banks of 8.0 KiB)")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := len(data), 16384; got != want {
		t.Fatalf("size=%d, want=%d", got, want)
	}

	if !bytes.Equal(data, bytes.Repeat([]byte{0xFF}, len(data))) {
		t.Error("image not erased")
	}

	stdout, stderr, exitCode := c.RunRaw("--device-type", "image", "--device", path, "set", "FOO", "bar")
	if exitCode != 0 {
		t.Fatalf("set on new image failed: %s%s", stdout, stderr)
	}
}

func Test_Image_Create_Fails_When_Size_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	path := filepath.Join(c.Dir, "bad.img")

	for _, size := range []string{"lots", "16", "33"} {
		c.MustFail("image", "create", path, "--size", size)
	}

	c.MustFail("image", "destroy", path)

	_, err := os.Stat(path)
	if !os.IsNotExist(err) {
		t.Errorf("image should not exist, stat err=%v", err)
	}
}
