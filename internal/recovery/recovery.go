// Package recovery implements adaptive clock/data separation: converting an
// unbounded sequence of flux intervals into a symbolic cell string suitable
// for pattern search.
package recovery

import (
	"fmt"

	"github.com/sergev/fluxrecon/internal/kryoflux"
)

// CellString is a sequence over the alphabet {'|', '-', ' '}: '|' marks a
// cell boundary matched by a flux transition, '-' marks an empty half-cell,
// ' ' marks an unrecoverable gap. Once produced for a given (stream,
// clock-rate) pair it is treated as immutable.
type CellString []byte

// Threshold is one entry of a clock-recovery specification: the nominal
// interval length (in sample clocks) that should be nudged toward observed
// data, and the cell-string token emitted when an interval is classified
// against it.
type Threshold struct {
	Nominal float64
	Token   string
}

const (
	// RATE is the exponential-nudge rate applied to a matched threshold.
	rate = 0.08
	// LIMIT is the maximum tolerated deviation, in sample clocks, before an
	// observed interval is treated as an outlier and the threshold is left
	// unmoved.
	limit = 12.5
)

// Recovery holds the mutable threshold state for one clock rate and
// modulation. A fresh Recovery must be used per Stream (thresholds drift
// with the data they are processing), but the same spec can seed many
// independent Recovery instances.
type Recovery struct {
	thresholds []float64
	tokens     []string
}

// New builds a Recovery from a threshold spec, scaling each nominal value by
// clock (the half-cell time R, in sample clocks, for this trial bit rate).
func New(spec []Threshold, clock float64) *Recovery {
	r := &Recovery{
		thresholds: make([]float64, len(spec)),
		tokens:     make([]string, len(spec)),
	}
	for i, t := range spec {
		r.thresholds[i] = t.Nominal * clock
		r.tokens[i] = t.Token
	}
	return r
}

// FM is the single-density spec: nominal half-cell R maps to "-|", and 2R to
// "---|".
func FM() []Threshold {
	return []Threshold{
		{Nominal: 1, Token: "-|"},
		{Nominal: 2, Token: "---|"},
	}
}

// MFM is the double-density spec: R maps to "-|", 1.5R to "--|", 2R to "---|".
func MFM() []Threshold {
	return []Threshold{
		{Nominal: 1, Token: "-|"},
		{Nominal: 1.5, Token: "--|"},
		{Nominal: 2, Token: "---|"},
	}
}

// M2FM is the Intel/HP modified-double-density spec used by Intel ISIS and
// HP 9885: R maps to "-|", 2R to "--|" or "---|" (the catalog lists 2R
// twice), and 2.5R to "----|".
func M2FM() []Threshold {
	return []Threshold{
		{Nominal: 1, Token: "-|"},
		{Nominal: 2, Token: "--|"},
		{Nominal: 2, Token: "---|"},
		{Nominal: 2.5, Token: "----|"},
	}
}

// Q1MFM is Q1 MicroLite's wide-tolerance double-density spec: 2R/3R/4R are
// the ordinary MFM cell lengths, extended with 5R/6R to span the long
// clock-violation sync run at the start of each address and data mark.
func Q1MFM() []Threshold {
	return []Threshold{
		{Nominal: 2, Token: "-|"},
		{Nominal: 3, Token: "--|"},
		{Nominal: 4, Token: "---|"},
		{Nominal: 5, Token: "----|"},
		{Nominal: 6, Token: "-----|"},
	}
}

// StandardClocks are the half-cell rates (in sample clocks) the orchestrator
// tries in order, corresponding to 500/300/250 kHz bit rates at typical
// KryoFlux sample clocks.
var StandardClocks = []float64{50, 80, 100}

// Process consumes a sequence of flux intervals and returns the resulting
// cell string. Each interval is classified against the nearest threshold by
// squared distance; if the match is within limit sample clocks, that
// threshold is nudged toward the observed value.
func (r *Recovery) Process(intervals []kryoflux.Interval) CellString {
	var out CellString
	for _, iv := range intervals {
		d := float64(iv)
		best := 0
		bestDist := (d - r.thresholds[0]) * (d - r.thresholds[0])
		for i := 1; i < len(r.thresholds); i++ {
			dist := (d - r.thresholds[i]) * (d - r.thresholds[i])
			if dist < bestDist {
				bestDist = dist
				best = i
			}
		}
		out = append(out, r.tokens[best]...)
		if bestDist < limit*limit {
			r.thresholds[best] += rate * (d - r.thresholds[best])
		}
	}
	return out
}

// DecodeFM extracts the data bits from an FM-encoded cell-string slice: every
// fourth character starting at offset 2 is a data bit. The slice length must
// be a multiple of 32 cells (4 per data bit, 8 bits per byte). Any space
// character causes rejection as unrecoverable.
func DecodeFM(cs CellString) ([]byte, error) {
	return decodeStrided(cs, 4, 2, 32)
}

// DecodeMFM extracts the data bits from an MFM-encoded cell-string slice:
// every second character starting at offset 1 is a data bit. The slice
// length must be a multiple of 16 cells (2 per data bit, 8 bits per byte).
func DecodeMFM(cs CellString) ([]byte, error) {
	return decodeStrided(cs, 2, 1, 16)
}

func decodeStrided(cs CellString, stride, offset, cellsPerByte int) ([]byte, error) {
	if len(cs)%cellsPerByte != 0 {
		return nil, fmt.Errorf("recovery: cell slice length %d is not a multiple of %d", len(cs), cellsPerByte)
	}
	for _, c := range cs {
		if c == ' ' {
			return nil, fmt.Errorf("recovery: unrecoverable gap in cell slice")
		}
	}
	out := make([]byte, len(cs)/cellsPerByte)
	bit := 0
	for i := offset; i < len(cs); i += stride {
		var b byte
		if cs[i] == '|' {
			b = 1
		}
		byteIdx := bit / 8
		shift := 7 - uint(bit%8)
		out[byteIdx] |= b << shift
		bit++
	}
	return out, nil
}
