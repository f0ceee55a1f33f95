package format

import (
	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&DGNova{})
}

const (
	dgNovaSectorSize = 512
	dgNovaClock      = 50
)

var dgNovaSpec = recovery.FM()

// DGNova recognizes Data General Nova 8" floppies: single-density FM,
// fixed 512-byte sectors, geometry 0-76/0/0-7, no address-mark CRC (only
// the data field is checksummed, with the format's deliberately weak
// "bogo" CRC-16).
type DGNova struct{}

func (d *DGNova) Name() string      { return "dgnova" }
func (d *DGNova) Aliases() []string { return []string{"DataGeneralNova"} }

func (d *DGNova) Process(stream *kryoflux.Stream, m *media.Media) bool {
	flux := cellsAt(stream, "fm", dgNovaSpec, dgNovaClock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanDGNova(flux, stream.Name, hint, m)
}

// scanDGNova is the pure decode pass over an already-recovered FM cell
// string; split out from Process for the same testability reason as
// scanIBMFM/scanIBMMFM.
func scanDGNova(flux pattern.CellString, source string, hint media.CHS, m *media.Media) bool {
	gap1 := pattern.Gap(16)
	gap2 := pattern.Gap(2)

	found := false
	for _, start := range pattern.Iter(flux, gap1) {
		amPos := start + len(gap1)
		if amPos+2*32 > len(flux) {
			continue
		}
		addressMark, err := pattern.DataFM(flux[amPos : amPos+2*32])
		if err != nil {
			continue
		}
		chs := media.CHS{Cylinder: int(addressMark[0]), Head: 0, Sector: int(addressMark[1] >> 2)}

		dataPos := pattern.Find(flux, gap2, amPos+2*32)
		if dataPos < 0 || dataPos-amPos > 10*32 {
			continue
		}
		dataPos += len(gap2)

		hi := dataPos + (2+dgNovaSectorSize)*32
		if hi > len(flux) {
			continue
		}
		data, err := pattern.DataFM(flux[dataPos:hi])
		if err != nil || len(data) < dgNovaSectorSize+2 {
			continue
		}

		dataCRC := pattern.BogoCRC(data[:dgNovaSectorSize])
		discCRC := uint16(data[dgNovaSectorSize])<<8 | uint16(data[dgNovaSectorSize+1])
		if dataCRC != discCRC {
			continue
		}

		payload := append([]byte{}, data[:dgNovaSectorSize]...)
		rs := media.NewReadSector(source, amPos, chs, hint, payload, nil, true)
		m.AddReading(rs)
		found = true
	}
	return found
}
