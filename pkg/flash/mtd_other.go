//go:build !linux

package flash

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/bootnv/pkg/fs"
)

// ErrUnsupported indicates MTD devices are not available on this platform.
var ErrUnsupported = errors.New("flash: mtd devices are only supported on linux")

// MTDOptions configures [OpenMTD].
type MTDOptions struct {
	FS          fs.FS
	MaxBankSize int
	WriteAlign  int
}

// MTD is unavailable on this platform; see the linux build.
type MTD struct {
	Device
}

// OpenMTD always fails with [ErrUnsupported] on this platform.
func OpenMTD(path string, _ MTDOptions) (*MTD, error) {
	return nil, fmt.Errorf("open mtd %q: %w", path, ErrUnsupported)
}
