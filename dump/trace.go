package dump

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Categories rendered as a blank in the ASCII column
var nonPrintable = []*unicode.RangeTable{unicode.Cc, unicode.Cf, unicode.Co, unicode.Cs}

// Trace formats the bytes forwarded by one worker into one block per burst.
// It is owned by its worker, so rows inside a block are strictly ordered.
//
// All methods are no-ops on a nil trace.
type Trace struct {
	recorder *Recorder
	workerID uint64
	source   string
	dest     string
	width    int

	// Finished blocks, in burst order
	blocks []Block

	// State of the burst being recorded
	block  *strings.Builder
	start  time.Time
	seq    uint64
	offset int
	index  int
	hex    strings.Builder
	ascii  strings.Builder
}

// Record appends the bytes of a read to the burst started at burstStart.
// A different burstStart closes the pending burst first
func (t *Trace) Record(burstStart time.Time, data []byte) {
	if t == nil || len(data) == 0 {
		return
	}

	if t.block != nil && !burstStart.Equal(t.start) {
		t.EndBurst()
	}
	if t.block == nil {
		t.beginBurst(burstStart)
	}

	for _, b := range data {
		if t.index == 0 {
			fmt.Fprintf(&t.hex, RowOffsetFormat, t.offset)
		}
		fmt.Fprintf(&t.hex, RowByteFormat, b)
		t.ascii.WriteRune(asciiRune(b))

		t.offset++
		t.index++
		if t.index >= t.width {
			t.flushRow()
		}
	}
}

// EndBurst pads the partially filled row, if any, and closes the block of the pending burst
func (t *Trace) EndBurst() {
	if t == nil || t.block == nil {
		return
	}

	if t.index > 0 {
		// Only the hex columns are padded, the ASCII column ends with the last byte
		for i := t.index; i < t.width; i++ {
			t.hex.WriteString(RowBytePadding)
		}
		t.flushRow()
	}

	t.blocks = append(t.blocks, Block{
		Timestamp: t.start,
		Seq:       t.seq,
		Text:      t.block.String(),
	})
	t.block = nil
	t.offset = 0
}

// Finish closes the pending burst and returns every block recorded by the worker
func (t *Trace) Finish() []Block {
	if t == nil {
		return nil
	}

	t.EndBurst()
	blocks := t.blocks
	t.blocks = nil
	return blocks
}

func (t *Trace) beginBurst(burstStart time.Time) {
	t.block = &strings.Builder{}
	t.start = burstStart
	t.seq = t.recorder.nextSeq()
	t.offset = 0
	t.index = 0
	t.hex.Reset()
	t.ascii.Reset()

	fmt.Fprintf(t.block, HeaderFormat, t.workerID, burstStart.Format(TimestampLayout), t.source, t.dest)
	t.block.WriteString(ruler(t.width))
}

func (t *Trace) flushRow() {
	t.block.WriteString(t.hex.String())
	t.block.WriteString(t.ascii.String())
	t.block.WriteString("\n")
	t.hex.Reset()
	t.ascii.Reset()
	t.index = 0
}

// ruler returns the column headers and the separator printed under the block header
func ruler(width int) string {
	var b strings.Builder

	b.WriteString(RulerPrefix)
	for i := 0; i < width; i++ {
		fmt.Fprintf(&b, RowByteFormat, i)
	}
	for i := 0; i < width; i++ {
		fmt.Fprintf(&b, "%1X", i&0xF)
	}
	b.WriteString("\n")

	b.WriteString(SeparatorPrefix)
	b.WriteString(strings.Repeat("----", width))
	b.WriteString("\n")

	return b.String()
}

// asciiRune renders a byte as its Latin-1 character, or a blank when it is not printable
func asciiRune(b byte) rune {
	r := rune(b)
	if unicode.In(r, nonPrintable...) || !unicode.IsGraphic(r) {
		return ' '
	}
	return r
}
