package parser

import (
	"bytes"
	"strings"
)

// Delimiter separates records in an NDJSON stream.
const Delimiter = '\n'

// Assemble splits carryOver+chunk into complete records and a new carry-over.
//
// Every segment followed by a delimiter is complete and returned in order. The final
// segment, when not delimiter-terminated, becomes the new carry-over; a chunk ending
// exactly on a delimiter leaves it empty. Whitespace-only segments are dropped and a
// trailing '\r' is trimmed. Carry-over is joined before anything is split, so a record
// straddling the seam is emitted exactly once.
func Assemble(carryOver string, chunk []byte) ([]string, string) {
	var buf []byte
	if carryOver != "" {
		buf = make([]byte, 0, len(carryOver)+len(chunk))
		buf = append(buf, carryOver...)
		buf = append(buf, chunk...)
	} else {
		buf = chunk
	}

	var records []string
	for {
		i := bytes.IndexByte(buf, Delimiter)
		if i < 0 {
			break
		}
		if line := normalizeLine(buf[:i]); line != "" {
			records = append(records, line)
		}
		buf = buf[i+1:]
	}

	return records, string(buf)
}

func normalizeLine(b []byte) string {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	if len(bytes.TrimSpace(b)) == 0 {
		return ""
	}
	return string(b)
}

// Assembler owns the carry-over buffer between successive chunks.
// It is not safe for concurrent use; the ingestion controller serializes access.
type Assembler struct {
	carry string
}

// NewAssembler creates an assembler with an empty carry-over.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Push feeds the next chunk and returns the records it completes.
// The carry-over is replaced wholesale.
func (a *Assembler) Push(chunk []byte) []string {
	records, carry := Assemble(a.carry, chunk)
	a.carry = carry
	return records
}

// Flush returns the pending fragment as a final record attempt and clears it.
// It returns "" when nothing, or only whitespace, is pending.
func (a *Assembler) Flush() string {
	tail := a.carry
	a.carry = ""
	tail = strings.TrimSuffix(tail, "\r")
	if strings.TrimSpace(tail) == "" {
		return ""
	}
	return tail
}

// Restore puts back a carry-over captured with Pending, undoing a pass whose
// records could not be committed.
func (a *Assembler) Restore(carry string) {
	a.carry = carry
}

// Pending returns the current carry-over without consuming it.
func (a *Assembler) Pending() string {
	return a.carry
}
