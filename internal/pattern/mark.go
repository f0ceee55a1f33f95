// Package pattern builds cell-string sync-mark patterns and searches for
// them in a recovered cell string.
package pattern

import "github.com/sergev/fluxrecon/internal/recovery"

// MakeMark interleaves the bits of clock and data into an MFM-style
// cell-string fragment: for each bit position, the clock bit contributes a
// '|' or '-', followed by the data bit's '|' or '-'. The result is 16
// characters long.
func MakeMark(clock, data byte) string {
	return interleave(clock, data, "")
}

// MakeMarkFM is MakeMark with an FM pad: each emitted character is followed
// by a '-', doubling the cell count relative to MFM (32 characters for one
// clock/data byte pair), representing the half-cell the MFM case elides.
func MakeMarkFM(clock, data byte) string {
	return interleave(clock, data, "-")
}

func interleave(clock, data byte, pad string) string {
	out := make([]byte, 0, 16*(1+len(pad)))
	for i := 7; i >= 0; i-- {
		out = appendBit(out, (clock>>uint(i))&1, pad)
		out = appendBit(out, (data>>uint(i))&1, pad)
	}
	return string(out)
}

func appendBit(out []byte, bit byte, pad string) []byte {
	if bit == 1 {
		out = append(out, '|')
	} else {
		out = append(out, '-')
	}
	return append(out, pad...)
}

// MultiByteMark concatenates per-byte MakeMark fragments for a multi-byte
// sync sequence, e.g. the MFM address mark "A1 A1 A1 FE" with clock bytes
// "0A 0A 0A 00" (the 0x0A clock produces the "missing clock" violation that
// distinguishes sync bytes from ordinary data).
func MultiByteMark(fm bool, clocks, data []byte) string {
	var out string
	for i := range data {
		if fm {
			out += MakeMarkFM(clocks[i], data[i])
		} else {
			out += MakeMark(clocks[i], data[i])
		}
	}
	return out
}

// Gap returns a run of length zero-clock FM cells followed by a terminal
// "1" cell, used to pad out to a sync mark: "|---" repeated, then "|-|-".
func Gap(length int) string {
	out := make([]byte, 0, length*4+4)
	for i := 0; i < length; i++ {
		out = append(out, '|', '-', '-', '-')
	}
	out = append(out, '|', '-', '|', '-')
	return string(out)
}

// CellString is an alias so callers of this package need not import
// internal/recovery directly for pattern search.
type CellString = recovery.CellString
