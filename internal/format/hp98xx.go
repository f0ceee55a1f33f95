package format

import (
	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&HP98xx{})
}

const (
	hp98xxSectorSize = 256
	hp98xxClock      = 50
	hp98xxDataWinLo  = 200
	hp98xxDataWinHi  = 500
)

var (
	hp98xxSpec = recovery.M2FM()
	hp98xxAM   = repeatCells("--|-", 10) + repeatCells("-|", 32) + "--|-|-|--|-|-|--"
	hp98xxDM   = repeatCells("--|-", 10) + repeatCells("-|", 32) + "--|-|-|--|---|--"
)

// HP98xx recognizes HP 9885 8" floppies: single-sided M2FM, with hardcoded
// sync-plus-mark patterns for the address and data fields rather than
// per-byte marks built from make_mark. Every byte of both fields is stored
// bit-reversed on the medium: the CRC-CCITT-false check runs against the
// bytes as decoded, and only the fields that survive it get bit-reversed to
// recover CHS and payload.
type HP98xx struct{}

func (h *HP98xx) Name() string      { return "hp98xx" }
func (h *HP98xx) Aliases() []string { return []string{"HP9885"} }

func (h *HP98xx) Process(stream *kryoflux.Stream, m *media.Media) bool {
	if stream.Hint.Head != 0 {
		return false
	}
	flux := cellsAt(stream, "m2fm", hp98xxSpec, hp98xxClock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: 0}
	return scanHP98xx(flux, stream.Name, hint, m)
}

// scanHP98xx is the pure decode pass over an already-recovered M2FM cell
// string; split out from Process for the same testability reason as the
// other recognizers.
//
// The address field sits directly at the end of the AM match with no
// byte-width backup: it decodes to exactly 5 bytes, CRC-checked whole
// (residue zero). The original's data-field CRC check is guarded by a stale
// "if amc: continue" that rechecks the address CRC instead of the data CRC
// it clearly meant to — by that point amc is already known zero, so the
// check can never fire and the data CRC is silently never verified. This
// decoder checks the data CRC for real.
func scanHP98xx(flux pattern.CellString, source string, hint media.CHS, m *media.Media) bool {
	found := false
	for _, start := range pattern.Iter(flux, hp98xxAM) {
		amPos := start + len(hp98xxAM)
		if amPos+80 > len(flux) {
			continue
		}
		addressMark, err := pattern.DataMFM(flux[amPos : amPos+80])
		if err != nil || pattern.CRC16CCITTFalse(0xffff, addressMark) != 0 {
			continue
		}
		reversedAM := pattern.ReverseBytes(addressMark)
		chs := media.CHS{Cylinder: int(reversedAM[0]), Head: 0, Sector: int(reversedAM[1])}

		dataPos := pattern.FindWithin(flux, hp98xxDM, amPos+hp98xxDataWinLo, amPos+hp98xxDataWinHi)
		if dataPos < 0 {
			continue
		}
		dataPos += len(hp98xxDM)

		width := (hp98xxSectorSize + 2) * 16
		if dataPos+width > len(flux) {
			continue
		}
		data, err := pattern.DataMFM(flux[dataPos : dataPos+width])
		if err != nil || pattern.CRC16CCITTFalse(0xffff, data) != 0 {
			continue
		}
		reversedData := pattern.ReverseBytes(data)

		payload := append([]byte{}, reversedData[:hp98xxSectorSize]...)
		rs := media.NewReadSector(source, amPos, chs, hint, payload, nil, true)
		m.AddReading(rs)
		found = true
	}
	return found
}
