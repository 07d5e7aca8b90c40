package flash

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/calvinalkan/bootnv/pkg/fs"
)

// DefaultEraseSize is the erase block size [Image] emulates when none is
// configured. It matches the 4 KiB sectors of common SPI NOR parts.
const DefaultEraseSize = 4096

// ErrImageSize indicates an image file whose size cannot be split into two
// banks.
var ErrImageSize = errors.New("flash: invalid image size")

// ImageOptions configures [OpenImage].
type ImageOptions struct {
	// FS is the filesystem used to open the image. Nil selects [fs.NewReal].
	FS fs.FS

	// EraseSize is the emulated erase block size. Zero selects
	// [DefaultEraseSize].
	EraseSize int

	// WriteAlign is the write padding granularity. Zero selects
	// [DefaultWriteAlign].
	WriteAlign int

	// MaxBankSize caps the reported bank capacity. Zero means no cap.
	MaxBankSize int
}

// Image is a [Device] backed by a regular file.
//
// The file is split in two halves; bank 1 starts at size/2, as on the MTD
// partitions the format was designed for. Erase is emulated by filling
// whole erase blocks with [Erased] before a write.
type Image struct {
	file       fs.File
	path       string
	half       int
	capacity   int
	eraseSize  int
	writeAlign int
}

// OpenImage opens an existing image file for reading and writing.
func OpenImage(path string, opts ImageOptions) (*Image, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	eraseSize := opts.EraseSize
	if eraseSize == 0 {
		eraseSize = DefaultEraseSize
	}

	writeAlign := opts.WriteAlign
	if writeAlign == 0 {
		writeAlign = DefaultWriteAlign
	}

	file, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("stat image %q: %w", path, err), file.Close())
	}

	size := info.Size()
	if size <= 0 || size%2 != 0 || size > int64(maxInt) {
		return nil, errors.Join(fmt.Errorf("image %q is %d bytes: %w", path, size, ErrImageSize), file.Close())
	}

	half := int(size / 2)

	capacity := half
	if opts.MaxBankSize > 0 && capacity > opts.MaxBankSize {
		capacity = opts.MaxBankSize
	}

	return &Image{
		file:       file,
		path:       path,
		half:       half,
		capacity:   capacity,
		eraseSize:  eraseSize,
		writeAlign: writeAlign,
	}, nil
}

const maxInt = int(^uint(0) >> 1)

// CreateImage writes a fully erased image of size bytes to path,
// atomically. size must be positive and even.
func CreateImage(fsys fs.FS, path string, size int) error {
	if size <= 0 || size%2 != 0 {
		return fmt.Errorf("size %d must be positive and even: %w", size, ErrImageSize)
	}

	if fsys == nil {
		fsys = fs.NewReal()
	}

	err := fsys.WriteFileAtomic(path, bytes.Repeat([]byte{Erased}, size), 0o644)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}

	return nil
}

// Size returns the bank capacity.
func (im *Image) Size() int {
	return im.capacity
}

// Path returns the image file path.
func (im *Image) Path() string {
	return im.path
}

// ReadBank reads len(p) bytes from the start of bank.
func (im *Image) ReadBank(bank int, p []byte) error {
	if im.file == nil {
		return ErrClosed
	}

	err := checkAccess(bank, len(p), im.capacity)
	if err != nil {
		return err
	}

	_, err = im.file.ReadAt(p, im.offset(bank))
	if err != nil {
		return fmt.Errorf("read bank %d: %w", bank, err)
	}

	return nil
}

// WriteBank erases the erase blocks covering the padded write, writes p
// and syncs the file.
func (im *Image) WriteBank(bank int, p []byte) error {
	if im.file == nil {
		return ErrClosed
	}

	padded := alignUp(len(p), im.writeAlign)

	err := checkAccess(bank, padded, im.capacity)
	if err != nil {
		return err
	}

	eraseLen := min(alignUp(padded, im.eraseSize), im.half)
	buf := bytes.Repeat([]byte{Erased}, eraseLen)
	copy(buf, p)

	_, err = im.file.WriteAt(buf, im.offset(bank))
	if err != nil {
		return fmt.Errorf("write bank %d: %w", bank, err)
	}

	err = im.file.Sync()
	if err != nil {
		return fmt.Errorf("sync bank %d: %w", bank, err)
	}

	return nil
}

// Clear erases the whole image.
func (im *Image) Clear() error {
	if im.file == nil {
		return ErrClosed
	}

	_, err := im.file.WriteAt(bytes.Repeat([]byte{Erased}, 2*im.half), 0)
	if err != nil {
		return fmt.Errorf("clear image: %w", err)
	}

	err = im.file.Sync()
	if err != nil {
		return fmt.Errorf("sync image: %w", err)
	}

	return nil
}

// Close closes the image file.
func (im *Image) Close() error {
	if im.file == nil {
		return ErrClosed
	}

	err := im.file.Close()
	im.file = nil

	if err != nil {
		return fmt.Errorf("close image: %w", err)
	}

	return nil
}

func (im *Image) offset(bank int) int64 {
	return int64(bank) * int64(im.half)
}

// Compile-time interface check.
var _ Device = (*Image)(nil)
