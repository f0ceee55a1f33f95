package format

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
)

// buildQ1FMFlux constructs a literal FM-style cell string for one sector:
// address mark, a 6-byte address field self-checked by a zero-sum over its
// first five bytes, a filler gap, the data mark, and a data field whose
// payload is followed by a residue-zero checksum byte and a trailing 0x10
// marker (mirroring the address field's own fixed 0x10 trailer).
func buildQ1FMFlux(cyl, sector byte, payload []byte, gapCells int) string {
	chk := byte(0) - cyl - sector
	addr := []byte{0, 0, cyl, sector, chk, 0x10}

	var b strings.Builder
	b.WriteString(q1FMAM)
	for _, v := range addr {
		b.WriteString(pattern.MakeMarkFM(0x00, v))
	}
	b.WriteString(strings.Repeat("-", gapCells))
	b.WriteString(q1FMDM)

	csum := byte(0) - q1Sum8(payload)
	data := append(append([]byte{}, payload...), csum, 0x10)
	for _, v := range data {
		b.WriteString(pattern.MakeMarkFM(0x00, v))
	}
	return b.String()
}

func buildQ1IndexPayload(name string, count, length, nsect, first, last uint16) []byte {
	payload := make([]byte, q1CatalogEntrySize)
	copy(payload[2:10], []byte(name))
	binary.LittleEndian.PutUint16(payload[10:12], count)
	binary.LittleEndian.PutUint16(payload[12:14], length)
	binary.LittleEndian.PutUint16(payload[14:16], nsect)
	binary.LittleEndian.PutUint16(payload[16:18], first)
	binary.LittleEndian.PutUint16(payload[18:20], last)
	return payload
}

func TestScanQ1MicroLiteFMCatalogDrivenLength(t *testing.T) {
	m := media.NewMedia("t")
	cat := q1CatalogFor(m)

	indexPayload := buildQ1IndexPayload("INDEX   ", 8, 128, 8, 1, 1)
	track0 := buildQ1FMFlux(0, 0, indexPayload, 100)
	if !scanQ1MicroLite(pattern.CellString(track0), "track00.0.raw", media.CHS{Cylinder: 0}, q1FMParams, cat, m) {
		t.Fatal("expected scanQ1MicroLite to decode the INDEX sector")
	}

	length, known := m.SectorLength(media.CHS{Cylinder: 1, Sector: 5})
	if !known || length == nil || *length != 128 {
		t.Fatalf("expected cylinder 1 sector 5 declared with length 128, got %v known=%v", length, known)
	}

	payload := make([]byte, 128)
	for i := range payload {
		payload[i] = byte(i)
	}
	track1 := buildQ1FMFlux(1, 5, payload, 100)
	if !scanQ1MicroLite(pattern.CellString(track1), "track01.0.raw", media.CHS{Cylinder: 1}, q1FMParams, cat, m) {
		t.Fatal("expected scanQ1MicroLite to decode the catalog-sized sector")
	}

	maj, ok := m.Majority(media.CHS{Cylinder: 1, Sector: 5})
	if !ok {
		t.Fatal("expected a recovered majority for the catalog-sized sector")
	}
	if string(maj) != string(payload) {
		t.Error("decoded payload does not match the synthetic sector's payload")
	}
}

func TestScanQ1MicroLiteFMGuessesSectorLength(t *testing.T) {
	m := media.NewMedia("t")
	cat := q1CatalogFor(m)

	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(10 + i)
	}
	flux := buildQ1FMFlux(7, 2, payload, 100)
	if !scanQ1MicroLite(pattern.CellString(flux), "track07.0.raw", media.CHS{Cylinder: 7}, q1FMParams, cat, m) {
		t.Fatal("expected scanQ1MicroLite to decode the sector via the length-guessing fallback")
	}

	maj, ok := m.Majority(media.CHS{Cylinder: 7, Sector: 2})
	if !ok {
		t.Fatal("expected a recovered majority for the guessed-length sector")
	}
	if string(maj) != string(payload) {
		t.Errorf("decoded payload = %v, want %v", maj, payload)
	}
}

func TestScanQ1MicroLiteFMRejectsGarbage(t *testing.T) {
	m := media.NewMedia("t")
	cat := q1CatalogFor(m)
	garbage := pattern.CellString(strings.Repeat("-|", 3000))
	if scanQ1MicroLite(garbage, "t.raw", media.CHS{}, q1FMParams, cat, m) {
		t.Fatal("expected no sector to be decoded from unstructured flux")
	}
}
