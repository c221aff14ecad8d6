package dump

import (
	"time"
)

const (
	// TimestampLayout is the layout of the burst timestamp printed in the block header
	TimestampLayout = "2006-01-02 15:04:05.000"

	// Header rows of every block: worker, burst timestamp, source -> destination
	HeaderFormat    = "Worker %06x: %s: %s -> %s\n"
	RulerPrefix     = "  Offset "
	SeparatorPrefix = "  -------"

	RowOffsetFormat = "  %06X "
	RowByteFormat   = "%02X "
	RowBytePadding  = "   "

	// Error messages
	WriteDumpErrorMessage = "Error writing the data dump"
)

// Block represents the formatted dump of a single burst
type Block struct {
	// Timestamp is the time the first byte of the burst was read
	Timestamp time.Time

	// Seq is the arrival order of the burst, it breaks ties between bursts started in the same millisecond
	Seq uint64

	Text string
}

// before reports whether the block goes first in the ordered output
func (b Block) before(other Block) bool {
	if b.Timestamp.UnixMilli() != other.Timestamp.UnixMilli() {
		return b.Timestamp.UnixMilli() < other.Timestamp.UnixMilli()
	}
	return b.Seq < other.Seq
}
