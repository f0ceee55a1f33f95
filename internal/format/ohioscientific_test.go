package format

import (
	"strings"
	"testing"

	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
)

// ohioBitsToCells renders a slice of 0/1 bits as the raw FM cell tokens
// scanOhioScientific's bit stream scans for ("|---" for 1, "|-|-" for 0).
func ohioBitsToCells(bits []int) string {
	var b strings.Builder
	for _, bit := range bits {
		if bit == 1 {
			b.WriteString("|---")
		} else {
			b.WriteString("|-|-")
		}
	}
	return b.String()
}

// ohioIdle appends n idle (mark-state) bits.
func ohioIdle(n int) []int {
	bits := make([]int, n)
	for i := range bits {
		bits[i] = 1
	}
	return bits
}

// ohioFrame8E encodes one async 8E1 character: idle run, start bit, 8 data
// bits LSB-first, an even-parity bit, and a stop bit.
func ohioFrame8E(idle int, value byte) []int {
	bits := ohioIdle(idle)
	bits = append(bits, 0)
	ones := 0
	for i := 0; i < 8; i++ {
		bit := int((value >> uint(i)) & 1)
		bits = append(bits, bit)
		ones += bit
	}
	bits = append(bits, ones&1)
	bits = append(bits, 1)
	return bits
}

// ohioFrame8N encodes one async 8N1 character: idle run, start bit, 8 data
// bits LSB-first, and a stop bit.
func ohioFrame8N(idle int, value byte) []int {
	bits := ohioIdle(idle)
	bits = append(bits, 0)
	for i := 0; i < 8; i++ {
		bits = append(bits, int((value>>uint(i))&1))
	}
	bits = append(bits, 1)
	return bits
}

func TestScanOhioScientificTrack0Index(t *testing.T) {
	// The record's length is encoded as payload[2]<<8, so it must be a
	// multiple of 256; it also needs to clear the 3000-byte flush threshold.
	const w = 3584
	payload := make([]byte, w)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	payload[2] = byte(w >> 8)

	var bits []int
	for _, v := range payload {
		bits = append(bits, ohioFrame8E(2, v)...)
	}
	bits = append(bits, ohioFrame8E(ohioBigGap+10, 0)...)

	flux := ohioBitsToCells(bits)
	hint := media.CHS{Cylinder: 0}
	m := media.NewMedia("t")
	if !scanOhioScientific(pattern.CellString(flux), "track00.0.raw", hint, m) {
		t.Fatal("expected scanOhioScientific to decode the track-0 index record")
	}

	maj, ok := m.Majority(media.CHS{})
	if !ok {
		t.Fatal("expected a recovered majority for the index record")
	}
	want := make([]byte, ohioSectorSize)
	copy(want, payload)
	if string(maj) != string(want) {
		t.Error("decoded index payload does not match the synthetic record")
	}
}

func TestScanOhioScientificDataTrack(t *testing.T) {
	body := make([]byte, 3588)
	for i := range body {
		body[i] = byte(i)
	}
	body[2] = 5 // cylinder embedded in the record itself

	var sum int
	for _, v := range body {
		sum += int(v)
	}
	sum &= 0xffff
	record := append(append([]byte{}, body...), byte(sum>>8), byte(sum))

	var bits []int
	bits = append(bits, ohioFrame8E(2, record[0])...)
	bits = append(bits, ohioFrame8E(2, record[1])...)
	bits = append(bits, ohioFrame8E(2, record[2])...)
	for _, v := range record[3:] {
		bits = append(bits, ohioFrame8N(2, v)...)
	}
	bits = append(bits, ohioFrame8N(ohioBigGap+10, 0)...)

	flux := ohioBitsToCells(bits)
	hint := media.CHS{Cylinder: 5}
	m := media.NewMedia("t")
	if !scanOhioScientific(pattern.CellString(flux), "track05.0.raw", hint, m) {
		t.Fatal("expected scanOhioScientific to decode the data-track record")
	}

	maj, ok := m.Majority(media.CHS{Cylinder: 5, Sector: 0})
	if !ok {
		t.Fatal("expected a recovered majority keyed by the embedded cylinder")
	}
	want := make([]byte, ohioSectorSize)
	copy(want, record)
	if string(maj) != string(want) {
		t.Error("decoded data payload does not match the synthetic record")
	}
}

func TestScanOhioScientificRejectsBadChecksum(t *testing.T) {
	body := make([]byte, 3588)
	body[2] = 9
	record := append(append([]byte{}, body...), 0xff, 0xff)

	var bits []int
	bits = append(bits, ohioFrame8E(2, record[0])...)
	bits = append(bits, ohioFrame8E(2, record[1])...)
	bits = append(bits, ohioFrame8E(2, record[2])...)
	for _, v := range record[3:] {
		bits = append(bits, ohioFrame8N(2, v)...)
	}
	bits = append(bits, ohioFrame8N(ohioBigGap+10, 0)...)

	flux := ohioBitsToCells(bits)
	hint := media.CHS{Cylinder: 9}
	m := media.NewMedia("t")
	if scanOhioScientific(pattern.CellString(flux), "track09.0.raw", hint, m) {
		t.Fatal("expected scanOhioScientific to reject a record with a bad checksum")
	}
}

func TestScanOhioScientificRejectsGarbage(t *testing.T) {
	m := media.NewMedia("t")
	garbage := strings.Repeat("-|", 3000)
	if scanOhioScientific(pattern.CellString(garbage), "t.raw", media.CHS{}, m) {
		t.Fatal("expected no record to be decoded from unstructured flux")
	}
}
