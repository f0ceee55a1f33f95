package format

import (
	"strings"

	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&IntelISIS{})
}

const (
	intelISISSectorSize = 128
	intelISISClock      = 50
	intelISISGap1       = 16
	intelISISDataWinLo  = 200
	intelISISDataWinHi  = 1000
)

var intelISISSpec = recovery.M2FM()

// IntelISIS recognizes Intel ISIS double-density 8" floppies: a single
// head (head must be 0), M2FM-recovered flux, distinct address and data
// marks, and a CRC-16/XMODEM check over both the address field and the
// data field.
type IntelISIS struct{}

func (ii *IntelISIS) Name() string      { return "intelisis" }
func (ii *IntelISIS) Aliases() []string { return []string{"IntelIsis"} }

func (ii *IntelISIS) Process(stream *kryoflux.Stream, m *media.Media) bool {
	if stream.Hint.Head != 0 {
		return false
	}
	flux := cellsAt(stream, "m2fm", intelISISSpec, intelISISClock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanIntelISIS(flux, stream.Name, hint, m)
}

// scanIntelISIS is the pure decode pass over an already-recovered M2FM cell
// string; split out from Process for the same testability reason as
// scanIBMFM/scanIBMMFM.
func scanIntelISIS(flux pattern.CellString, source string, hint media.CHS, m *media.Media) bool {
	sync := strings.Repeat("|-", intelISISGap1)
	amPattern := sync + pattern.MakeMark(0x87, 0x70)
	dataPattern := sync + pattern.MakeMark(0x85, 0x70)

	found := false
	for _, start := range pattern.Iter(flux, amPattern) {
		amPos := start + len(amPattern)

		// Back up one byte-width from amPos so the window's first byte is
		// the mark's own data byte (0x70), then take exactly the 7 bytes
		// the address field needs (mark + cyl + head + sector + size + 2
		// CRC bytes), the same byte-aligned convention scanIBMFM and
		// scanDecRX use for their address marks.
		lo, hi := amPos-16, amPos-16+7*16
		if lo < 0 || hi > len(flux) {
			continue
		}
		addressMark, err := pattern.DataMFM(flux[lo:hi])
		if err != nil || pattern.CRC16Xmodem(addressMark) != 0 {
			continue
		}
		chs := media.CHS{Cylinder: int(addressMark[1]), Head: int(addressMark[2]), Sector: int(addressMark[3])}

		dataPos := pattern.FindWithin(flux, dataPattern, amPos+intelISISDataWinLo, amPos+intelISISDataWinHi+1)
		if dataPos < 0 {
			continue
		}
		dataPos += len(dataPattern)
		dataPos -= 16

		// dataPos now sits at the start of the data mark's own byte
		// (0x70); the field needs exactly 131 bytes (mark + 128-byte
		// payload + 2 CRC bytes).
		lo, hi = dataPos, dataPos+131*16
		if lo < 0 || hi > len(flux) {
			continue
		}
		data, err := pattern.DataMFM(flux[lo:hi])
		if err != nil || pattern.CRC16Xmodem(data) != 0 {
			continue
		}

		payload := append([]byte{}, data[1:1+intelISISSectorSize]...)
		rs := media.NewReadSector(source, amPos, chs, hint, payload, nil, true)
		m.AddReading(rs)
		found = true
	}
	return found
}
