package format

import (
	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&ZilogMCZ{})
}

const (
	zilogMCZSectorSize = 136
	zilogMCZClock      = 50
)

var zilogMCZSpec = recovery.FM()

// ZilogMCZ recognizes Zilog MCZ/1 8" floppies: single-density FM, a single
// 32-"0" gap as the only sync mark (no separate address mark), 136-byte
// sectors followed by two CRC bytes, checked as a CRC-16/BUYPASS residue
// over the CHS header bytes, payload and CRC together.
type ZilogMCZ struct{}

func (z *ZilogMCZ) Name() string      { return "zilogmcz" }
func (z *ZilogMCZ) Aliases() []string { return []string{"ZilogMCZ"} }

func (z *ZilogMCZ) Process(stream *kryoflux.Stream, m *media.Media) bool {
	flux := cellsAt(stream, "fm", zilogMCZSpec, zilogMCZClock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanZilogMCZ(flux, stream.Name, hint, m)
}

// scanZilogMCZ is the pure decode pass over an already-recovered FM cell
// string; split out from Process for the same testability reason as
// scanIBMFM/scanIBMMFM.
func scanZilogMCZ(flux pattern.CellString, source string, hint media.CHS, m *media.Media) bool {
	gap := pattern.Gap(32)

	found := false
	for _, start := range pattern.Iter(flux, gap) {
		dataPos := start + len(gap) - 4

		hi := dataPos + (2+zilogMCZSectorSize)*32
		if dataPos < 0 || hi > len(flux) {
			continue
		}
		data, err := pattern.DataFM(flux[dataPos:hi])
		if err != nil {
			continue
		}
		if pattern.CRC16Buypass(0, data) != 0 {
			continue
		}

		chs := media.CHS{Cylinder: int(data[1]), Head: 0, Sector: int(data[0] & 0x7f)}
		payload := append([]byte{}, data[:len(data)-2]...)
		rs := media.NewReadSector(source, dataPos, chs, hint, payload, nil, true)
		m.AddReading(rs)
		found = true
	}
	return found
}
