package cli_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/bootnv/internal/cli"
)

func Test_Boot_Initializes_Defaults_When_Image_Erased(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout, stderr, exitCode := c.Run("boot")

	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	want := "slot=A\npartition=1\nBOOT_ORDER=A B\nBOOT_A_LEFT=2\nBOOT_B_LEFT=3\n"
	if diff := cmp.Diff(want, stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}

	cli.AssertContains(t, stderr, "initializing defaults")
}

func Test_Boot_Falls_Back_To_Second_Slot_Then_Exhausts_When_Repeated(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	type attempt struct{ slot, aLeft, bLeft string }

	var got []attempt

	for range 6 {
		lines := parseLines(c.MustRun("boot"))
		got = append(got, attempt{lines["slot"], lines["BOOT_A_LEFT"], lines["BOOT_B_LEFT"]})
	}

	want := []attempt{
		{"A", "2", "3"},
		{"A", "1", "3"},
		{"A", "0", "3"},
		{"B", "0", "2"},
		{"B", "0", "1"},
		{"B", "0", "0"},
	}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(attempt{})); diff != "" {
		t.Fatalf("boot sequence mismatch (-want +got):\n%s", diff)
	}

	stderr := c.MustFail("boot")
	cli.AssertContains(t, stderr, "no bootable slot")

	// Exhaustion does not touch the persisted counters.
	if got, want := c.MustRun("get", "BOOT_B_LEFT"), "0"; got != want {
		t.Errorf("BOOT_B_LEFT=%q, want=%q", got, want)
	}
}

func Test_Boot_Reports_Partition_Two_When_Slot_B_Selected(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "BOOT_ORDER", "B A")
	c.MustRun("set", "BOOT_A_LEFT", "3")
	c.MustRun("set", "BOOT_B_LEFT", "1")

	lines := parseLines(c.MustRun("boot"))

	if got, want := lines["slot"], "B"; got != want {
		t.Errorf("slot=%q, want=%q", got, want)
	}

	if got, want := lines["partition"], "2"; got != want {
		t.Errorf("partition=%q, want=%q", got, want)
	}

	if got, want := lines["BOOT_B_LEFT"], "0"; got != want {
		t.Errorf("BOOT_B_LEFT=%q, want=%q", got, want)
	}
}

func Test_Boot_Reinitializes_When_Counter_Corrupt(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("boot")
	c.MustRun("set", "BOOT_A_LEFT", "two")

	stdout, stderr, exitCode := c.Run("boot")
	if got, want := exitCode, 0; got != want {
		t.Fatalf("exitCode=%d, want=%d\nstderr: %s", got, want, stderr)
	}

	lines := parseLines(stdout)
	if got, want := lines["BOOT_A_LEFT"], "2"; got != want {
		t.Errorf("BOOT_A_LEFT=%q, want=%q", got, want)
	}

	if got, want := lines["BOOT_B_LEFT"], "3"; got != want {
		t.Errorf("BOOT_B_LEFT=%q, want=%q", got, want)
	}

	cli.AssertContains(t, stderr, "BOOT_A_LEFT")
}

func Test_Boot_Reinitializes_When_Order_Malformed(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "BOOT_ORDER", "A  B")
	c.MustRun("set", "BOOT_A_LEFT", "1")
	c.MustRun("set", "BOOT_B_LEFT", "1")

	lines := parseLines(c.MustRun("boot"))

	if got, want := lines["BOOT_ORDER"], "A B"; got != want {
		t.Errorf("BOOT_ORDER=%q, want=%q", got, want)
	}

	if got, want := lines["BOOT_A_LEFT"], "2"; got != want {
		t.Errorf("BOOT_A_LEFT=%q, want=%q", got, want)
	}
}

func Test_Init_Resets_Counters_When_Exhausted(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustRun("set", "BOOT_ORDER", "A B")
	c.MustRun("set", "BOOT_A_LEFT", "0")
	c.MustRun("set", "BOOT_B_LEFT", "0")
	c.MustFail("boot")

	want := "BOOT_ORDER=A B\nBOOT_A_LEFT=3\nBOOT_B_LEFT=3"
	if diff := cmp.Diff(want, c.MustRun("init")); diff != "" {
		t.Errorf("init mismatch (-want +got):\n%s", diff)
	}

	if got, want := parseLines(c.MustRun("boot"))["slot"], "A"; got != want {
		t.Errorf("slot=%q, want=%q", got, want)
	}
}

func Test_Init_Uses_Configured_Partition_And_Retries_When_Config_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	path := c.WriteConfig("bootnv.json", `{
		// running from the B partition
		"boot": {"partition": 2, "default_retries": 5},
	}`)

	want := "BOOT_ORDER=B A\nBOOT_A_LEFT=5\nBOOT_B_LEFT=5"
	if diff := cmp.Diff(want, c.MustRun("-c", path, "init")); diff != "" {
		t.Errorf("init mismatch (-want +got):\n%s", diff)
	}

	lines := parseLines(c.MustRun("-c", path, "boot"))
	if got, want := lines["slot"], "B"; got != want {
		t.Errorf("slot=%q, want=%q", got, want)
	}

	if got, want := lines["BOOT_B_LEFT"], "4"; got != want {
		t.Errorf("BOOT_B_LEFT=%q, want=%q", got, want)
	}
}
