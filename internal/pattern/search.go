package pattern

import (
	"bytes"

	"github.com/sergev/fluxrecon/internal/recovery"
)

// Find returns the offset of the first occurrence of pat in cs at or after
// start, or -1 if absent. The cell string alphabet is a plain byte slice, so
// this is an ordinary substring search (bytes.Index uses a Boyer-Moore-like
// skip table internally, satisfying the "implemented efficiently" design
// note for multi-megabyte per-track cell strings).
func Find(cs CellString, pat string, start int) int {
	if start > len(cs) {
		return -1
	}
	idx := bytes.Index([]byte(cs[start:]), []byte(pat))
	if idx < 0 {
		return -1
	}
	return start + idx
}

// FindWithin is Find bounded to the window [start, end): it returns -1
// unless the whole match lies inside the window, even if one exists further
// on.
// Format recognizers use this to require that a sector's data mark follows
// its address mark within a maximum gap, rather than picking up the next
// track's address mark by accident.
func FindWithin(cs CellString, pat string, start, end int) int {
	if end > len(cs) {
		end = len(cs)
	}
	if start >= end {
		return -1
	}
	pos := Find(cs[:end], pat, start)
	return pos
}

// Iter returns the start offset of every non-overlapping occurrence of pat
// in cs, left to right, in ascending order. Callers that need the position
// just past a matched sync mark (the convention address-mark search used
// to locate the following field) add len(pat) themselves.
func Iter(cs CellString, pat string) []int {
	var offsets []int
	off := 0
	for {
		pos := Find(cs, pat, off)
		if pos < 0 {
			return offsets
		}
		offsets = append(offsets, pos)
		off = pos + len(pat)
	}
}

// DataFM extracts data bits from an FM cell-string slice, every 4th
// character starting at offset 2. It rejects the slice if its length is not
// a multiple of 32 cells or it contains an unrecoverable gap.
func DataFM(cs CellString) ([]byte, error) {
	return recovery.DecodeFM(recovery.CellString(cs))
}

// DataMFM extracts data bits from an MFM cell-string slice, every 2nd
// character starting at offset 1.
func DataMFM(cs CellString) ([]byte, error) {
	return recovery.DecodeMFM(recovery.CellString(cs))
}
