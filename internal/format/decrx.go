package format

import (
	"strings"

	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&DecRX{})
}

const (
	decRXSectorSize = 256
	decRXGap1       = 32
	decRXDataWinLo  = 550
	decRXDataWinHi  = 800
	decRXClock      = 50
)

var decRXSpec = recovery.FM()

// DecRX recognizes DEC RX01/RX02 8" floppies. Both the address mark and,
// on RX02 media, the high-density data mark are conventional FM marks;
// RX02 payloads past the data mark are "modified MFM" and need the
// rewrite-rule decoder in decodeModifiedMFM rather than a fixed stride.
type DecRX struct{}

func (d *DecRX) Name() string      { return "decrx" }
func (d *DecRX) Aliases() []string { return []string{"DecRx02"} }

func (d *DecRX) Process(stream *kryoflux.Stream, m *media.Media) bool {
	flux := cellsAt(stream, "fm", decRXSpec, decRXClock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanDecRX(flux, stream.Name, hint, m)
}

// scanDecRX is the pure decode pass over an already-recovered FM cell
// string; split out from Process for the same testability reason as
// scanIBMFM/scanIBMMFM.
func scanDecRX(flux pattern.CellString, source string, hint media.CHS, m *media.Media) bool {
	sync := strings.Repeat("|---", decRXGap1)
	amPattern := sync + pattern.MakeMarkFM(0xc7, 0xfe)
	hdPattern := sync + pattern.MakeMarkFM(0xc7, 0xfd)

	found := false
	for _, start := range pattern.Iter(flux, amPattern) {
		amPos := start + len(amPattern)
		lo, hi := amPos-32, amPos+6*32
		if lo < 0 || hi > len(flux) {
			continue
		}
		addressMark, err := pattern.DataFM(flux[lo:hi])
		if err != nil || pattern.CRC16CCITTFalse(0xffff, addressMark) != 0 {
			continue
		}
		chs := media.CHS{Cylinder: int(addressMark[1]), Head: int(addressMark[2]), Sector: int(addressMark[3])}

		dataPos := pattern.FindWithin(flux, hdPattern, amPos+decRXDataWinLo, amPos+decRXDataWinHi)
		if dataPos < 0 {
			continue
		}
		dataPos += len(hdPattern)

		width := (2+decRXSectorSize)*16 + 32
		if dataPos+width > len(flux) {
			continue
		}
		dataFlux := flux[dataPos : dataPos+width]
		if strings.ContainsRune(string(dataFlux), ' ') {
			continue
		}

		decoded := decodeModifiedMFM(dataFlux[1:], 2+decRXSectorSize)
		data := append([]byte{0xfd}, decoded...)
		if pattern.CRC16CCITTFalse(0xffff, data) != 0 {
			continue
		}

		payload := append([]byte{}, data[1:1+decRXSectorSize]...)
		rs := media.NewReadSector(source, amPos, chs, hint, payload, []string{"density=HD"}, true)
		m.AddReading(rs)
		found = true
	}
	return found
}

// decodeModifiedMFM runs the RX02 high-density rewrite rule over a cell
// string: a single '|' cell is bit 1, the ten-cell run "-|---|---|" is the
// five bits "01111", and anything else is bit 0. It returns the first
// nBytes decoded bytes, padding the input with sixteen '|' cells the way
// the original decoder does to let the ten-cell lookahead run past the
// end of a well-formed field. Padding cells are all '|', so a decode that
// runs off the end of real flux reads as a run of 1 bits; scanDecRX relies
// on the data field's own CRC to reject that case.
func decodeModifiedMFM(flux pattern.CellString, nBytes int) []byte {
	padded := string(flux) + strings.Repeat("|", 16)
	var bits strings.Builder
	targetCells := 2 * nBytes * 8
	for i := 0; i < targetCells; {
		var sym string
		switch {
		case i < len(padded) && padded[i] == '|':
			sym = "1"
		case i+10 <= len(padded) && padded[i:i+10] == "-|---|---|":
			sym = "01111"
		default:
			sym = "0"
		}
		bits.WriteString(sym)
		i += len(sym) * 2
	}

	bitStr := bits.String()
	out := make([]byte, nBytes)
	for n := 0; n < nBytes; n++ {
		var b byte
		for k := 0; k < 8; k++ {
			b = (b << 1) | (bitStr[n*8+k] - '0')
		}
		out[n] = b
	}
	return out
}
