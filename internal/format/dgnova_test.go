package format

import (
	"testing"

	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
)

// buildDGNovaSectorCells constructs a literal FM cell string for one DG
// Nova sector: GAP1, a 2-byte address mark (cylinder, sector<<2), GAP2,
// then the 512-byte payload and its 2-byte bogo-CRC trailer.
func buildDGNovaSectorCells(cylinder, sector byte, payload []byte) string {
	gap1 := pattern.Gap(16)
	gap2 := pattern.Gap(2)

	var out string
	out += gap1
	out += pattern.MakeMarkFM(0x00, cylinder)
	out += pattern.MakeMarkFM(0x00, sector<<2)
	out += gap2
	for _, v := range payload {
		out += pattern.MakeMarkFM(0x00, v)
	}
	crc := pattern.BogoCRC(payload)
	out += pattern.MakeMarkFM(0x00, byte(crc>>8))
	out += pattern.MakeMarkFM(0x00, byte(crc))
	return out
}

func TestScanDGNovaDecodesSector(t *testing.T) {
	payload := make([]byte, dgNovaSectorSize)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	cells := buildDGNovaSectorCells(12, 3, payload)
	hint := media.CHS{Cylinder: 12, Head: 0}
	m := media.NewMedia("t")

	if !scanDGNova(pattern.CellString(cells), "track12.0.raw", hint, m) {
		t.Fatal("expected scanDGNova to decode the synthetic sector")
	}

	maj, ok := m.Majority(media.CHS{Cylinder: 12, Head: 0, Sector: 3})
	if !ok {
		t.Fatal("expected a recovered majority for the synthetic sector")
	}
	if string(maj) != string(payload) {
		t.Error("decoded payload does not match the synthetic sector's payload")
	}
}

func TestScanDGNovaRejectsBadCRC(t *testing.T) {
	payload := make([]byte, dgNovaSectorSize)
	cells := buildDGNovaSectorCells(0, 0, payload)
	// Flip a payload byte after the CRC was computed over the original.
	corrupted := []byte(cells)
	corrupted[len(pattern.Gap(16))+2*32+len(pattern.Gap(2))+2] = '|'
	m := media.NewMedia("t")
	if scanDGNova(pattern.CellString(corrupted), "t.raw", media.CHS{}, m) {
		t.Fatal("expected CRC mismatch to reject the corrupted sector")
	}
}

func TestScanDGNovaRejectsGarbage(t *testing.T) {
	m := media.NewMedia("t")
	garbage := pattern.CellString("-|--|---|----|-|-|---|--|-")
	if scanDGNova(garbage, "t.raw", media.CHS{}, m) {
		t.Fatal("expected no sector to be decoded from unstructured flux")
	}
}
