package format

import (
	"testing"

	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
)

// buildWangWCSFlux constructs a literal FM cell string for one sector: an
// address-mark sync, a 6-byte address field (cylinder, sector, then four
// reserved bytes that must decode as zero), a gap, a data-mark sync, and a
// 256-byte payload followed by its CRC-16/BUYPASS residue over a
// 0x03-prefixed field.
func buildWangWCSFlux(cylinder, sector byte, payload []byte, gap2 int) string {
	out := wangWCSAMMark
	addressMark := []byte{cylinder, sector, 0, 0, 0, 0}
	for _, b := range addressMark {
		out += pattern.MakeMarkFM(0x00, b)
	}
	out += repeatCells("|---", gap2)
	out += wangWCSDataAM
	for _, b := range payload {
		out += pattern.MakeMarkFM(0x00, b)
	}
	checked := append([]byte{0x03}, payload...)
	crc := pattern.CRC16Buypass(0, checked)
	out += pattern.MakeMarkFM(0x00, byte(crc>>8))
	out += pattern.MakeMarkFM(0x00, byte(crc))
	return out
}

func TestScanWangWCSDecodesSector(t *testing.T) {
	payload := make([]byte, wangWCSSectorSize)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	cells := buildWangWCSFlux(12, 3, payload, 100)
	hint := media.CHS{Cylinder: 12, Head: 0}
	m := media.NewMedia("t")

	if !scanWangWCS(pattern.CellString(cells), "track12.0.raw", hint, m) {
		t.Fatal("expected scanWangWCS to decode the synthetic sector")
	}

	maj, ok := m.Majority(media.CHS{Cylinder: 12, Head: 0, Sector: 3})
	if !ok {
		t.Fatal("expected a recovered majority for the synthetic sector")
	}
	if string(maj) != string(payload) {
		t.Error("decoded payload does not match the synthetic sector's payload")
	}
}

func TestScanWangWCSRejectsBadReservedBytes(t *testing.T) {
	payload := make([]byte, wangWCSSectorSize)
	out := wangWCSAMMark
	addressMark := []byte{1, 0, 0, 5, 0, 0}
	for _, b := range addressMark {
		out += pattern.MakeMarkFM(0x00, b)
	}
	out += repeatCells("|---", 100)
	out += wangWCSDataAM
	for _, b := range payload {
		out += pattern.MakeMarkFM(0x00, b)
	}
	checked := append([]byte{0x03}, payload...)
	crc := pattern.CRC16Buypass(0, checked)
	out += pattern.MakeMarkFM(0x00, byte(crc>>8))
	out += pattern.MakeMarkFM(0x00, byte(crc))

	m := media.NewMedia("t")
	if scanWangWCS(pattern.CellString(out), "t.raw", media.CHS{}, m) {
		t.Fatal("expected scanWangWCS to reject a nonzero reserved byte")
	}
}

func TestScanWangWCSRejectsGarbage(t *testing.T) {
	m := media.NewMedia("t")
	garbage := pattern.CellString("-|--|---|----|-|-|---|--|-")
	if scanWangWCS(garbage, "t.raw", media.CHS{}, m) {
		t.Fatal("expected no sector to be decoded from unstructured flux")
	}
}
