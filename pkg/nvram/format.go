package nvram

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Section format constants.
//
//	Section := Header(16) || Data(data_size)
//	Header  := counter u32 | data_size u32 | data_crc u32 | hdr_crc u32
//	Data    := Entry*
//	Entry   := key_len u32 | value_len u32 | key | value
//
// No terminators and no padding. Integers use the deployment byte order.
const (
	// HeaderSize is the fixed section header size in bytes.
	HeaderSize = 16

	// entryHeaderSize covers key_len and value_len.
	entryHeaderSize = 8
)

// Header field offsets (bytes from section start).
const (
	offCounter  = 0x00 // uint32
	offDataSize = 0x04 // uint32
	offDataCRC  = 0x08 // uint32
	offHdrCRC   = 0x0C // uint32, covers [0, offHdrCRC)
)

// Header is the decoded 16-byte section header.
type Header struct {
	Counter  uint32
	DataSize uint32
	DataCRC  uint32
	HdrCRC   uint32
}

// checksum is CRC32 over the IEEE polynomial with the conventional
// 0xFFFFFFFF seed and final inversion.
func checksum(p []byte) uint32 {
	return crc32.ChecksumIEEE(p)
}

// Codec encodes and decodes sections in one fixed byte order.
//
// The zero value is not usable; use [NewCodec].
type Codec struct {
	order binary.ByteOrder
}

// NewCodec returns a codec for order. A nil order selects little-endian.
func NewCodec(order binary.ByteOrder) Codec {
	if order == nil {
		order = binary.LittleEndian
	}

	return Codec{order: order}
}

// ByteOrder returns the codec's byte order.
func (c Codec) ByteOrder() binary.ByteOrder {
	return c.order
}

// SerializedSize returns the section size needed for s: the header plus
// 8 + len(key) + len(value) per entry.
func (c Codec) SerializedSize(s *Store) uint32 {
	return HeaderSize + dataSize(s)
}

func dataSize(s *Store) uint32 {
	var n uint32
	for _, e := range s.entries {
		n += entryHeaderSize + uint32(len(e.Key)) + uint32(len(e.Value))
	}

	return n
}

// Serialize writes the section for s with the given counter into out and
// returns the number of bytes written.
//
// Entries are written in store order after the header; the data CRC is
// computed first, then the header CRC over the first 12 header bytes.
// Returns [ErrBufferTooSmall] if out cannot hold [Codec.SerializedSize]
// bytes.
func (c Codec) Serialize(s *Store, counter uint32, out []byte) (int, error) {
	size := c.SerializedSize(s)
	if uint64(len(out)) < uint64(size) {
		return 0, fmt.Errorf("need %d bytes, have %d: %w", size, len(out), ErrBufferTooSmall)
	}

	off := HeaderSize
	for _, e := range s.entries {
		if len(e.Key) >= entryLenSentinel || len(e.Value) >= entryLenSentinel {
			return 0, fmt.Errorf("entry %q: %w", e.Key, ErrValueTooLong)
		}

		c.order.PutUint32(out[off:], uint32(len(e.Key)))
		c.order.PutUint32(out[off+4:], uint32(len(e.Value)))
		off += entryHeaderSize
		off += copy(out[off:], e.Key)
		off += copy(out[off:], e.Value)
	}

	hdr := Header{
		Counter:  counter,
		DataSize: size - HeaderSize,
		DataCRC:  checksum(out[HeaderSize:off]),
	}
	c.putHeader(out, hdr)

	return off, nil
}

// putHeader encodes hdr into buf[:HeaderSize], computing HdrCRC.
func (c Codec) putHeader(buf []byte, hdr Header) {
	c.order.PutUint32(buf[offCounter:], hdr.Counter)
	c.order.PutUint32(buf[offDataSize:], hdr.DataSize)
	c.order.PutUint32(buf[offDataCRC:], hdr.DataCRC)
	c.order.PutUint32(buf[offHdrCRC:], checksum(buf[:offHdrCRC]))
}

// ParseHeader decodes the first 16 bytes of buf and reports whether the
// stored header CRC matches. The header is returned only when valid.
func (c Codec) ParseHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderSize {
		return Header{}, false
	}

	hdr := Header{
		Counter:  c.order.Uint32(buf[offCounter:]),
		DataSize: c.order.Uint32(buf[offDataSize:]),
		DataCRC:  c.order.Uint32(buf[offDataCRC:]),
		HdrCRC:   c.order.Uint32(buf[offHdrCRC:]),
	}

	if checksum(buf[:offHdrCRC]) != hdr.HdrCRC {
		return Header{}, false
	}

	return hdr, true
}

// DataValid reports whether the first hdr.DataSize bytes of data match
// hdr.DataCRC. A short buffer is never valid.
func (Codec) DataValid(hdr Header, data []byte) bool {
	if uint64(len(data)) < uint64(hdr.DataSize) {
		return false
	}

	return checksum(data[:hdr.DataSize]) == hdr.DataCRC
}

// Deserialize decodes the data region described by hdr into s.
//
// The caller must have validated both CRCs. s must be empty
// ([ErrNotEmpty] otherwise); it is left clean. Entries keep their on-flash
// order. Returns [ErrInvalidFormat] for a length field at or above 256 or
// an entry that runs past hdr.DataSize.
func (c Codec) Deserialize(hdr Header, data []byte, s *Store) error {
	if s.Len() != 0 {
		return ErrNotEmpty
	}

	if uint64(len(data)) < uint64(hdr.DataSize) {
		return fmt.Errorf("data region is %d bytes, header declares %d: %w", len(data), hdr.DataSize, ErrInvalidFormat)
	}

	data = data[:hdr.DataSize]

	decoded := NewStore()

	off := 0
	for off < len(data) {
		if len(data)-off < entryHeaderSize {
			return fmt.Errorf("truncated entry header at offset %d: %w", off, ErrInvalidFormat)
		}

		keyLen := c.order.Uint32(data[off:])
		valueLen := c.order.Uint32(data[off+4:])

		if keyLen >= entryLenSentinel || valueLen >= entryLenSentinel {
			return fmt.Errorf("entry at offset %d declares lengths %d/%d: %w", off, keyLen, valueLen, ErrInvalidFormat)
		}

		off += entryHeaderSize

		end := off + int(keyLen) + int(valueLen)
		if end > len(data) {
			return fmt.Errorf("entry at offset %d runs past data_size %d: %w", off-entryHeaderSize, len(data), ErrInvalidFormat)
		}

		key := string(data[off : off+int(keyLen)])
		value := string(data[off+int(keyLen) : end])
		decoded.appendDecoded(key, value)

		off = end
	}

	*s = *decoded

	return nil
}
