package format

import (
	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&WangWCS{})
}

const (
	wangWCSSectorSize = 256
	wangWCSClock      = 50
	wangWCSMaxGap2    = 800
	wangWCSMinGap2    = 500
)

var (
	wangWCSSpec   = recovery.FM()
	wangWCSAMMark = repeatCells("--|-", 32) + repeatCells("|-", 3)
	wangWCSDataAM = repeatCells("--|-", 24) + repeatCells("|-", 3)
)

func repeatCells(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

// WangWCS recognizes Wang WCS 8" floppies: single-density FM, a distinct
// address mark and data mark (both unusual "--|-" sync runs rather than
// IBM's missing-clock marks), 256-byte sectors, and a CRC-16/BUYPASS check
// over the data field prefixed with a literal 0x03 byte.
type WangWCS struct{}

func (w *WangWCS) Name() string      { return "wangwcs" }
func (w *WangWCS) Aliases() []string { return []string{"WangWcs"} }

func (w *WangWCS) Process(stream *kryoflux.Stream, m *media.Media) bool {
	flux := cellsAt(stream, "fm", wangWCSSpec, wangWCSClock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanWangWCS(flux, stream.Name, hint, m)
}

// scanWangWCS is the pure decode pass over an already-recovered FM cell
// string; split out from Process for the same testability reason as
// scanIBMFM/scanIBMMFM.
func scanWangWCS(flux pattern.CellString, source string, hint media.CHS, m *media.Media) bool {
	found := false
	for _, start := range pattern.Iter(flux, wangWCSAMMark) {
		amPos := start + len(wangWCSAMMark)
		if amPos+6*32 > len(flux) {
			continue
		}
		addressMark, err := pattern.DataFM(flux[amPos : amPos+6*32])
		if err != nil {
			continue
		}
		if max7(addressMark[2:]) != 0 {
			continue
		}
		chs := media.CHS{Cylinder: int(addressMark[0]), Head: 0, Sector: int(addressMark[1])}

		dataPos := pattern.Find(flux, wangWCSDataAM, amPos+wangWCSMinGap2)
		if dataPos < 0 || amPos+wangWCSMaxGap2 < dataPos {
			continue
		}
		dataPos += len(wangWCSDataAM)

		hi := dataPos + (2+wangWCSSectorSize)*32
		if hi > len(flux) {
			continue
		}
		data, err := pattern.DataFM(flux[dataPos:hi])
		if err != nil {
			continue
		}

		checked := append([]byte{0x03}, data...)
		if pattern.CRC16Buypass(0, checked) != 0 {
			continue
		}

		payload := append([]byte{}, data[:wangWCSSectorSize]...)
		rs := media.NewReadSector(source, amPos, chs, hint, payload, nil, true)
		m.AddReading(rs)
		found = true
	}
	return found
}

func max7(bs []byte) byte {
	var m byte
	for _, b := range bs {
		if b > m {
			m = b
		}
	}
	return m
}
