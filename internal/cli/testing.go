package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/bootnv/internal/config"
	"github.com/calvinalkan/bootnv/pkg/flash"
	"github.com/calvinalkan/bootnv/pkg/fs"
)

// testImageSize gives two 4 KiB banks.
const testImageSize = 8192

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory holding an erased flash image, and isolates
// the run from the system config.
type CLI struct {
	t     *testing.T
	Dir   string
	Image string
	Env   map[string]string
}

// NewCLI creates a new test CLI with a fresh image in a temp directory.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	dir := t.TempDir()
	image := filepath.Join(dir, "nvram.img")

	err := flash.CreateImage(fs.NewReal(), image, testImageSize)
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}

	return &CLI{
		t:     t,
		Dir:   dir,
		Image: image,
		Env: map[string]string{
			config.EnvConfigPath: filepath.Join(dir, "absent-config.json"),
		},
	}
}

func (r *CLI) args(args []string) []string {
	return append([]string{"bootnv", "--device-type", config.DeviceImage, "--device", r.Image}, args...)
}

// Run executes the CLI against the test image and returns stdout, stderr,
// and exit code. Args should not include "bootnv" or the device flags.
func (r *CLI) Run(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	code := Run(nil, &outBuf, &errBuf, r.args(args), r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// RunRaw executes the CLI with exactly args, without the device flags.
func (r *CLI) RunRaw(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	code := Run(nil, &outBuf, &errBuf, append([]string{"bootnv"}, args...), r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// RunWithInput executes the CLI with stdin and returns stdout, stderr, and exit code.
// stdin must be a string or io.Reader; panics otherwise.
func (r *CLI) RunWithInput(stdin any, args ...string) (string, string, int) {
	var inReader io.Reader
	switch v := stdin.(type) {
	case string:
		inReader = strings.NewReader(v)
	case io.Reader:
		inReader = v
	default:
		panic(fmt.Sprintf("stdin must be string or io.Reader, got %T", stdin))
	}

	var outBuf, errBuf bytes.Buffer

	code := Run(inReader, &outBuf, &errBuf, r.args(args), r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("command %v failed with exit code %d\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Also fails if stdout is not empty. Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	if stdout != "" {
		r.t.Fatalf("command %v failed but stdout should be empty\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// ReadImage returns the raw image bytes.
func (r *CLI) ReadImage() []byte {
	r.t.Helper()

	data, err := os.ReadFile(r.Image)
	if err != nil {
		r.t.Fatalf("failed to read image: %v", err)
	}

	return data
}

// WriteConfig writes a config file into the temp directory and returns its path.
func (r *CLI) WriteConfig(name, content string) string {
	r.t.Helper()

	path := filepath.Join(r.Dir, name)

	err := os.WriteFile(path, []byte(content), 0o600)
	if err != nil {
		r.t.Fatalf("failed to write config %s: %v", name, err)
	}

	return path
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
