package testutil

import "strconv"

// OpGenConfig configures the operation generator.
type OpGenConfig struct {
	// SetRate is the percentage of ops that set a key (0-100).
	SetRate int

	// DeleteRate is the percentage of ops that delete a key.
	DeleteRate int

	// CommitRate is the percentage of ops that commit.
	CommitRate int

	// CutCommitRate is the percentage of ops that commit with a power cut.
	CutCommitRate int

	// ReopenRate is the percentage of ops that reopen the medium.
	ReopenRate int

	// ClearRate is the percentage of ops that erase both banks.
	ClearRate int

	// Keys is the size of the key pool. A small pool makes overwrites and
	// deletes of present keys common.
	Keys int

	// MaxValueLen bounds generated values. Values longer than 255 bytes
	// exercise rejection.
	MaxValueLen int
}

// DefaultOpGenConfig returns a balanced configuration.
func DefaultOpGenConfig() OpGenConfig {
	return OpGenConfig{
		SetRate:       40,
		DeleteRate:    12,
		CommitRate:    20,
		CutCommitRate: 12,
		ReopenRate:    12,
		ClearRate:     4,
		Keys:          10,
		MaxValueLen:   260,
	}
}

// OpGenerator generates deterministic operations from a byte stream.
type OpGenerator struct {
	stream *ByteStream
	config OpGenConfig
}

// NewOpGenerator creates a new operation generator.
func NewOpGenerator(fuzzBytes []byte, cfg *OpGenConfig) *OpGenerator {
	return &OpGenerator{
		stream: NewByteStream(fuzzBytes),
		config: *cfg,
	}
}

// HasMore reports whether more operations can be generated.
func (g *OpGenerator) HasMore() bool {
	return g.stream.HasMore()
}

// NextOp generates the next operation.
func (g *OpGenerator) NextOp() Op {
	choice := int(g.stream.NextByte()) % 100

	cumulative := g.config.SetRate
	if choice < cumulative {
		return SetOp{Key: g.key(), Value: g.stream.NextText(g.stream.NextLen(g.config.MaxValueLen + 1))}
	}

	cumulative += g.config.DeleteRate
	if choice < cumulative {
		return DeleteOp{Key: g.key()}
	}

	cumulative += g.config.CommitRate
	if choice < cumulative {
		return CommitOp{}
	}

	cumulative += g.config.CutCommitRate
	if choice < cumulative {
		return CutCommitOp{At: g.stream.NextLen(2048 + 1)}
	}

	cumulative += g.config.ReopenRate
	if choice < cumulative {
		return ReopenOp{}
	}

	cumulative += g.config.ClearRate
	if choice < cumulative {
		return ClearOp{}
	}

	return CommitOp{}
}

func (g *OpGenerator) key() string {
	return "KEY_" + strconv.Itoa(g.stream.NextInt(g.config.Keys))
}
