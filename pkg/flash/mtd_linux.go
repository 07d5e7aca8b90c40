//go:build linux

package flash

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/calvinalkan/bootnv/pkg/fs"
)

// ioctl requests from <mtd/mtd-abi.h>.
const (
	memGetInfo = 0x80204d01 // _IOR('M', 1, struct mtd_info_user)
	memErase   = 0x40084d02 // _IOW('M', 2, struct erase_info_user)
)

// mtdInfoUser mirrors struct mtd_info_user.
type mtdInfoUser struct {
	Type      uint8
	_         [3]byte
	Flags     uint32
	Size      uint32
	EraseSize uint32
	WriteSize uint32
	OOBSize   uint32
	_         uint64
}

// eraseInfoUser mirrors struct erase_info_user.
type eraseInfoUser struct {
	Start  uint32
	Length uint32
}

// MTDOptions configures [OpenMTD].
type MTDOptions struct {
	// FS opens the device node. Nil selects [fs.NewReal].
	FS fs.FS

	// MaxBankSize caps the reported bank capacity. Zero means no cap.
	MaxBankSize int

	// WriteAlign is the minimum write padding. The device's own write size
	// is used when larger. Zero selects [DefaultWriteAlign].
	WriteAlign int
}

// MTD is a [Device] on a Linux MTD character device such as /dev/mtd3.
//
// The partition is split in two halves; bank 1 starts at size/2. Erases are
// rounded up to whole erase blocks with MEMERASE.
type MTD struct {
	file       fs.File
	path       string
	half       int
	capacity   int
	eraseSize  int
	writeAlign int
}

// OpenMTD opens and probes an MTD character device.
func OpenMTD(path string, opts MTDOptions) (*MTD, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	file, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open mtd: %w", err)
	}

	var info mtdInfoUser

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, file.Fd(), memGetInfo, uintptr(unsafe.Pointer(&info)))
	if errno != 0 {
		return nil, errors.Join(fmt.Errorf("MEMGETINFO %q: %w", path, errno), file.Close())
	}

	if info.Size == 0 || info.EraseSize == 0 || (info.Size/2)%info.EraseSize != 0 {
		return nil, errors.Join(
			fmt.Errorf("mtd %q: size %d does not split into erase blocks of %d: %w", path, info.Size, info.EraseSize, ErrImageSize),
			file.Close(),
		)
	}

	half := int(info.Size / 2)

	capacity := half
	if opts.MaxBankSize > 0 && capacity > opts.MaxBankSize {
		capacity = opts.MaxBankSize
	}

	writeAlign := opts.WriteAlign
	if writeAlign == 0 {
		writeAlign = DefaultWriteAlign
	}

	writeAlign = max(writeAlign, int(info.WriteSize))

	return &MTD{
		file:       file,
		path:       path,
		half:       half,
		capacity:   capacity,
		eraseSize:  int(info.EraseSize),
		writeAlign: writeAlign,
	}, nil
}

// Size returns the bank capacity.
func (m *MTD) Size() int {
	return m.capacity
}

// EraseSize returns the device erase block size.
func (m *MTD) EraseSize() int {
	return m.eraseSize
}

// ReadBank reads len(p) bytes from the start of bank.
func (m *MTD) ReadBank(bank int, p []byte) error {
	if m.file == nil {
		return ErrClosed
	}

	err := checkAccess(bank, len(p), m.capacity)
	if err != nil {
		return err
	}

	_, err = m.file.ReadAt(p, m.offset(bank))
	if err != nil {
		return fmt.Errorf("read bank %d: %w", bank, err)
	}

	return nil
}

// WriteBank erases the blocks covering the padded write and programs p.
func (m *MTD) WriteBank(bank int, p []byte) error {
	if m.file == nil {
		return ErrClosed
	}

	padded := alignUp(len(p), m.writeAlign)

	err := checkAccess(bank, padded, m.capacity)
	if err != nil {
		return err
	}

	err = m.erase(m.offset(bank), min(alignUp(padded, m.eraseSize), m.half))
	if err != nil {
		return err
	}

	if padded == 0 {
		return nil
	}

	buf := make([]byte, padded)
	erase(buf)
	copy(buf, p)

	_, err = m.file.WriteAt(buf, m.offset(bank))
	if err != nil {
		return fmt.Errorf("write bank %d: %w", bank, err)
	}

	return nil
}

// Clear erases the whole partition.
func (m *MTD) Clear() error {
	if m.file == nil {
		return ErrClosed
	}

	return m.erase(0, 2*m.half)
}

// Close closes the device node.
func (m *MTD) Close() error {
	if m.file == nil {
		return ErrClosed
	}

	err := m.file.Close()
	m.file = nil

	if err != nil {
		return fmt.Errorf("close mtd: %w", err)
	}

	return nil
}

func (m *MTD) erase(offset int64, length int) error {
	if length == 0 {
		return nil
	}

	ei := eraseInfoUser{Start: uint32(offset), Length: uint32(length)}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, m.file.Fd(), memErase, uintptr(unsafe.Pointer(&ei)))
	if errno != 0 {
		return fmt.Errorf("MEMERASE %q at 0x%x len %d: %w", m.path, offset, length, errno)
	}

	return nil
}

func (m *MTD) offset(bank int) int64 {
	return int64(bank) * int64(m.half)
}

// Compile-time interface check.
var _ Device = (*MTD)(nil)
