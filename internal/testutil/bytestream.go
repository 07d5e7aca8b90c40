package testutil

// ByteStream reads bytes sequentially from a byte slice.
//
// Used by fuzz tests to deterministically derive values from fuzz input.
// When the stream is exhausted, all reads return zero values. This ensures
// determinism: the same input always produces the same sequence of values.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over the given bytes.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// NextInt returns a value in [0, maxVal) derived from the next byte.
func (s *ByteStream) NextInt(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	return int(s.NextByte()) % maxVal
}

// NextLen returns a length in [0, maxVal) from the next two bytes, so
// lengths above 255 are reachable.
func (s *ByteStream) NextLen(maxVal int) int {
	if maxVal <= 0 {
		return 0
	}

	hi, lo := int(s.NextByte()), int(s.NextByte())

	return (hi<<8 | lo) % maxVal
}

// NextText returns n printable ASCII bytes derived from one stream byte.
// The text never contains the erased flash byte 0xFF.
func (s *ByteStream) NextText(n int) string {
	if n <= 0 {
		return ""
	}

	seed := s.NextByte()
	out := make([]byte, n)

	for i := range out {
		out[i] = 'a' + byte((int(seed)+i)%26)
	}

	return string(out)
}
