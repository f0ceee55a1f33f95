package format

import (
	"strings"
	"testing"

	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
)

// buildFMSectorCells constructs a literal FM cell string for one sector,
// using the exact mark layout scanIBMFM searches for: sync, address mark,
// CHS+size+CRC, sync, data mark, payload, CRC. Built straight from
// pattern.MakeMarkFM so it needs no round trip through clock recovery.
func buildFMSectorCells(chs [3]byte, sizeCode byte, payload []byte, deleted bool) string {
	sync := strings.Repeat("|---", ibmFMGap1)

	var b strings.Builder
	b.WriteString(sync)
	b.WriteString(pattern.MakeMarkFM(0xc7, 0xfe))

	addrBody := []byte{0xfe, chs[0], chs[1], chs[2], sizeCode}
	amCRC := pattern.CRC16CCITTFalse(0xffff, addrBody)
	for _, v := range []byte{chs[0], chs[1], chs[2], sizeCode, byte(amCRC >> 8), byte(amCRC)} {
		b.WriteString(pattern.MakeMarkFM(0x00, v))
	}

	b.WriteString(sync)
	markByte := byte(0xfb)
	if deleted {
		markByte = 0xf8
	}
	b.WriteString(pattern.MakeMarkFM(0xc7, markByte))

	dataBody := append([]byte{markByte}, payload...)
	dataCRC := pattern.CRC16CCITTFalse(0xffff, dataBody)
	for _, v := range payload {
		b.WriteString(pattern.MakeMarkFM(0x00, v))
	}
	b.WriteString(pattern.MakeMarkFM(0x00, byte(dataCRC>>8)))
	b.WriteString(pattern.MakeMarkFM(0x00, byte(dataCRC)))
	return b.String()
}

// buildMFMSectorCells is buildFMSectorCells for the MFM mark layout, with
// the fixed 20-byte minimum gap2 scanIBMMFM requires before the data mark.
func buildMFMSectorCells(chs [3]byte, sizeCode byte, payload []byte, deleted bool) string {
	sync := strings.Repeat("|-", ibmMFMGap1)
	a1 := pattern.MakeMark(0x0a, 0xa1)

	var b strings.Builder
	b.WriteString(sync)
	b.WriteString(a1)
	b.WriteString(a1)
	b.WriteString(a1)
	b.WriteString(pattern.MakeMark(0x00, 0xfe))

	addrBody := []byte{0xa1, 0xa1, 0xa1, 0xfe, chs[0], chs[1], chs[2], sizeCode}
	amCRC := pattern.CRC16CCITTFalse(0xffff, addrBody)
	for _, v := range []byte{chs[0], chs[1], chs[2], sizeCode, byte(amCRC >> 8), byte(amCRC)} {
		b.WriteString(pattern.MakeMark(0x00, v))
	}

	// Filler out to the 20-byte minimum gap2 scanIBMMFM enforces before
	// searching for the data mark, using a clock/data pattern ("00") that
	// cannot itself contain a sync run.
	for i := 0; i < 14; i++ {
		b.WriteString(pattern.MakeMark(0x00, 0x00))
	}

	b.WriteString(sync)
	b.WriteString(a1)
	b.WriteString(a1)
	b.WriteString(a1)
	markClock := byte(0x00)
	markByte := byte(0xfb)
	if deleted {
		markClock = 0x03
		markByte = 0xf8
	}
	b.WriteString(pattern.MakeMark(markClock, markByte))

	dataBody := append([]byte{0xa1, 0xa1, 0xa1, markByte}, payload...)
	dataCRC := pattern.CRC16CCITTFalse(0xffff, dataBody)
	for _, v := range payload {
		b.WriteString(pattern.MakeMark(0x00, v))
	}
	b.WriteString(pattern.MakeMark(0x00, byte(dataCRC>>8)))
	b.WriteString(pattern.MakeMark(0x00, byte(dataCRC)))
	return b.String()
}

func TestScanIBMFMDecodesSector(t *testing.T) {
	payload := make([]byte, 128)
	copy(payload, []byte("HELLO, FLOPPY DISK SECTOR CONTENTS!!!!!"))

	cells := buildFMSectorCells([3]byte{0, 1, 5}, 0, payload, false)
	hint := media.CHS{Cylinder: 0, Head: 1}
	m := media.NewMedia("t")

	if !scanIBMFM(pattern.CellString(cells), "track00.1.raw", hint, 50, m) {
		t.Fatal("expected scanIBMFM to decode the synthetic sector")
	}

	maj, ok := m.Majority(media.CHS{Cylinder: 0, Head: 1, Sector: 5})
	if !ok {
		t.Fatal("expected a recovered majority for the synthetic sector")
	}
	if string(maj) != string(payload) {
		t.Errorf("decoded payload mismatch:\n got  %q\n want %q", maj, payload)
	}
}

func TestScanIBMFMDeletedSectorIsFlagged(t *testing.T) {
	payload := make([]byte, 128)
	cells := buildFMSectorCells([3]byte{1, 0, 3}, 0, payload, true)
	m := media.NewMedia("t")

	if !scanIBMFM(pattern.CellString(cells), "track01.0.raw", media.CHS{Cylinder: 1, Head: 0}, 50, m) {
		t.Fatal("expected scanIBMFM to decode the deleted-data sector")
	}
	if defined, _ := m.IsDefined(media.CHS{Cylinder: 1, Head: 0, Sector: 3}); defined {
		t.Error("deleted-data sector should not be marked as explicitly defined")
	}
	ms := m.GetSector(media.CHS{Cylinder: 1, Head: 0, Sector: 3})
	if len(ms.Readings) != 1 || !ms.Readings[0].Flags["deleted"] {
		t.Error("expected the reading to carry the deleted flag")
	}
	if _, ok := m.Majority(media.CHS{Cylinder: 1, Head: 0, Sector: 3}); !ok {
		t.Error("expected a recovered majority for the deleted-data sector")
	}
}

func TestScanIBMFMRejectsGarbage(t *testing.T) {
	m := media.NewMedia("t")
	garbage := pattern.CellString(strings.Repeat("-|", 2000))
	if scanIBMFM(garbage, "track00.0.raw", media.CHS{}, 50, m) {
		t.Fatal("expected no sector to be decoded from unstructured flux")
	}
}

func TestScanIBMMFMDecodesSector(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}

	cells := buildMFMSectorCells([3]byte{2, 0, 9}, 1, payload, false)
	hint := media.CHS{Cylinder: 2, Head: 0}
	m := media.NewMedia("t")

	if !scanIBMMFM(pattern.CellString(cells), "track02.0.raw", hint, 50, m) {
		t.Fatal("expected scanIBMMFM to decode the synthetic sector")
	}

	maj, ok := m.Majority(media.CHS{Cylinder: 2, Head: 0, Sector: 9})
	if !ok {
		t.Fatal("expected a recovered majority for the synthetic sector")
	}
	if string(maj) != string(payload) {
		t.Errorf("decoded payload mismatch:\n got  %q\n want %q", maj, payload)
	}
}

func TestScanIBMMFMRejectsGarbage(t *testing.T) {
	m := media.NewMedia("t")
	garbage := pattern.CellString(strings.Repeat("-|", 2000))
	if scanIBMMFM(garbage, "track00.0.raw", media.CHS{}, 50, m) {
		t.Fatal("expected no sector to be decoded from unstructured flux")
	}
}

// TestIBMProcessFullRotationOnAllFailures drives IBM.Process with flux that
// matches no trial, through the real stream/recovery path, and checks that
// a full failed pass leaves the trial order exactly as it started (each
// failure rotates one trial to the back, so len(trials) failures is one
// full rotation).
func TestIBMProcessFullRotationOnAllFailures(t *testing.T) {
	ibm := NewIBM()
	before := append([]ibmTrial{}, ibm.trials...)

	stream := &kryoflux.Stream{
		Name: "track00.0.raw",
		Hint: kryoflux.PhysicalCHS{Cylinder: 0, Head: 0},
		Intervals: func() []kryoflux.Interval {
			ivs := make([]kryoflux.Interval, 4000)
			for i := range ivs {
				ivs[i] = 50
			}
			return ivs
		}(),
	}

	if ibm.Process(stream, media.NewMedia("t")) {
		t.Fatal("expected no recognizer trial to match uniform flux")
	}
	if len(ibm.trials) != len(before) {
		t.Fatalf("trial count changed: got %d, want %d", len(ibm.trials), len(before))
	}
	for i := range before {
		if ibm.trials[i] != before[i] {
			t.Errorf("trial order not fully rotated back at index %d: got %+v, want %+v", i, ibm.trials[i], before[i])
		}
	}
}
