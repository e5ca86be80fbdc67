// Package checkpoint implements the totally ordered position used to track
// progress through multi-chain history.
package checkpoint

import (
	"fmt"
	"strconv"
	"strings"
)

// widths of each encoded component, chosen so the lexicographic order of the
// zero-padded decimal string equals the numeric order of the tuple.
const (
	timestampWidth       = 10 // unix seconds fits in 10 digits until year 2286
	chainIDWidth         = 16
	blockNumberWidth     = 16
	transactionIndexWidth = 6
	eventIndexWidth      = 6

	// EncodedLength is the total width of an encoded checkpoint, including
	// the separating dots.
	EncodedLength = timestampWidth + chainIDWidth + blockNumberWidth + transactionIndexWidth + eventIndexWidth + 4
)

// Checkpoint identifies a position in multi-chain history. Components
// compare lexicographically in the order they are declared.
type Checkpoint struct {
	BlockTimestamp   uint64
	ChainID          uint64
	BlockNumber      uint64
	TransactionIndex uint64
	EventIndex       uint64
}

// Zero is the smallest possible checkpoint.
var Zero = Checkpoint{}

// Max is the largest possible checkpoint.
var Max = Checkpoint{
	BlockTimestamp:   maxOfWidth(timestampWidth),
	ChainID:          maxOfWidth(chainIDWidth),
	BlockNumber:      maxOfWidth(blockNumberWidth),
	TransactionIndex: maxOfWidth(transactionIndexWidth),
	EventIndex:       maxOfWidth(eventIndexWidth),
}

func maxOfWidth(width int) uint64 {
	v := uint64(1)
	for i := 0; i < width; i++ {
		v *= 10
	}
	return v - 1
}

// Encode renders the checkpoint as a fixed-width, lexicographically
// sortable string.
func Encode(c Checkpoint) string {
	var b strings.Builder
	b.Grow(EncodedLength)
	writePadded(&b, c.BlockTimestamp, timestampWidth)
	b.WriteByte('.')
	writePadded(&b, c.ChainID, chainIDWidth)
	b.WriteByte('.')
	writePadded(&b, c.BlockNumber, blockNumberWidth)
	b.WriteByte('.')
	writePadded(&b, c.TransactionIndex, transactionIndexWidth)
	b.WriteByte('.')
	writePadded(&b, c.EventIndex, eventIndexWidth)
	return b.String()
}

func writePadded(b *strings.Builder, v uint64, width int) {
	s := strconv.FormatUint(v, 10)
	for i := len(s); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
}

// Decode parses a string produced by Encode back into a Checkpoint.
func Decode(s string) (Checkpoint, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 5 {
		return Checkpoint{}, fmt.Errorf("checkpoint: malformed encoding %q: expected 5 components, got %d", s, len(parts))
	}

	values := make([]uint64, 5)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Checkpoint{}, fmt.Errorf("checkpoint: malformed component %d (%q): %w", i, p, err)
		}
		values[i] = v
	}

	return Checkpoint{
		BlockTimestamp:   values[0],
		ChainID:          values[1],
		BlockNumber:      values[2],
		TransactionIndex: values[3],
		EventIndex:       values[4],
	}, nil
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func Compare(a, b Checkpoint) int {
	if a.BlockTimestamp != b.BlockTimestamp {
		return cmp(a.BlockTimestamp, b.BlockTimestamp)
	}
	if a.ChainID != b.ChainID {
		return cmp(a.ChainID, b.ChainID)
	}
	if a.BlockNumber != b.BlockNumber {
		return cmp(a.BlockNumber, b.BlockNumber)
	}
	if a.TransactionIndex != b.TransactionIndex {
		return cmp(a.TransactionIndex, b.TransactionIndex)
	}
	return cmp(a.EventIndex, b.EventIndex)
}

func cmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b Checkpoint) bool {
	return Compare(a, b) < 0
}

// LessOrEqual reports whether a sorts before or equal to b.
func LessOrEqual(a, b Checkpoint) bool {
	return Compare(a, b) <= 0
}

// Min returns the smaller of a and b.
func Min(a, b Checkpoint) Checkpoint {
	if Compare(a, b) <= 0 {
		return a
	}
	return b
}

// MaxOf returns the larger of a and b.
func MaxOf(a, b Checkpoint) Checkpoint {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}

// String implements fmt.Stringer for debug logging.
func (c Checkpoint) String() string {
	return Encode(c)
}
