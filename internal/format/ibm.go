package format

import (
	"fmt"
	"strings"

	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(NewIBM())
}

var ibmFMSpec = recovery.FM()
var ibmMFMSpec = recovery.MFM()

// ibmTrial is one (encoding, clock) combination the IBM recognizer tries.
type ibmTrial struct {
	mfm   bool
	clock float64
}

// IBM recognizes IBM-compatible FM and MFM single/double-density tracks, as
// used by the vast majority of 8", 5.25" and 3.5" PC-family floppies. It
// tries every (encoding, clock) combination in turn, keeping whichever one
// last succeeded at the front of the list for the next stream.
type IBM struct {
	trials []ibmTrial
}

// NewIBM returns an IBM recognizer seeded with the standard clock ladder.
func NewIBM() *IBM {
	ibm := &IBM{}
	for _, clock := range recovery.StandardClocks {
		ibm.trials = append(ibm.trials, ibmTrial{mfm: false, clock: clock})
		ibm.trials = append(ibm.trials, ibmTrial{mfm: true, clock: clock})
	}
	return ibm
}

func (ibm *IBM) Name() string      { return "ibm" }
func (ibm *IBM) Aliases() []string { return []string{"IBM"} }

func (ibm *IBM) Process(stream *kryoflux.Stream, m *media.Media) bool {
	for i := 0; i < len(ibm.trials); i++ {
		t := ibm.trials[0]
		var ok bool
		if t.mfm {
			ok = processIBMMFM(stream, m, t.clock)
		} else {
			ok = processIBMFM(stream, m, t.clock)
		}
		if ok {
			return true
		}
		ibm.trials = append(ibm.trials[1:], t)
	}
	return false
}

const ibmFMGap1 = 4
const ibmFMMaxGap2 = 100

func processIBMFM(stream *kryoflux.Stream, m *media.Media, clock float64) bool {
	flux := cellsAt(stream, "fm", ibmFMSpec, clock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanIBMFM(flux, stream.Name, hint, clock, m)
}

// scanIBMFM is the pure decode pass over an already-recovered FM cell
// string, kept separate from processIBMFM so it can be exercised directly
// with a literal cell string in tests, without round-tripping synthetic
// flux intervals through the adaptive clock recovery.
func scanIBMFM(flux pattern.CellString, source string, hint media.CHS, clock float64, m *media.Media) bool {
	sync := strings.Repeat("|---", ibmFMGap1)
	amPattern := sync + pattern.MakeMarkFM(0xc7, 0xfe)
	dataPattern := sync + pattern.MakeMarkFM(0xc7, 0xfb)
	deletePattern := sync + pattern.MakeMarkFM(0xc7, 0xf8)

	found := false
	for _, start := range pattern.Iter(flux, amPattern) {
		amPos := start + len(amPattern)
		lo, hi := amPos-32, amPos+6*32
		if lo < 0 || hi > len(flux) {
			continue
		}
		addressMark, err := pattern.DataFM(flux[lo:hi])
		if err != nil || pattern.CRC16CCITTFalse(0xffff, addressMark) != 0 {
			continue
		}
		chs := media.CHS{Cylinder: int(addressMark[1]), Head: int(addressMark[2]), Sector: int(addressMark[3])}
		sectorSize := 128 << addressMark[4]
		extra := []string{"mode=FM", fmt.Sprintf("clock=%d", int(clock))}

		dataPos := pattern.FindWithin(flux, dataPattern, amPos, amPos+ibmFMMaxGap2*32)
		if dataPos < 0 {
			dataPos = pattern.FindWithin(flux, deletePattern, amPos, amPos+ibmFMMaxGap2*32)
			if dataPos >= 0 {
				extra = append(extra, "deleted")
			}
		}
		if dataPos < 0 {
			continue
		}
		dataPos += len(dataPattern)

		lo, hi = dataPos-32, dataPos+(2+sectorSize)*32
		if lo < 0 || hi > len(flux) {
			continue
		}
		data, err := pattern.DataFM(flux[lo:hi])
		if err != nil || pattern.CRC16CCITTFalse(0xffff, data) != 0 {
			continue
		}

		payload := append([]byte{}, data[1:1+sectorSize]...)
		rs := media.NewReadSector(source, amPos, chs, hint, payload, extra, true)
		m.AddReading(rs)
		found = true
	}
	return found
}

const ibmMFMGap1 = 32
const ibmMFMMaxGap2 = 60

func processIBMMFM(stream *kryoflux.Stream, m *media.Media, clock float64) bool {
	flux := cellsAt(stream, "mfm", ibmMFMSpec, clock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanIBMMFM(flux, stream.Name, hint, clock, m)
}

// scanIBMMFM is the pure decode pass over an already-recovered MFM cell
// string; see scanIBMFM for why this is split out from processIBMMFM.
func scanIBMMFM(flux pattern.CellString, source string, hint media.CHS, clock float64, m *media.Media) bool {
	sync := strings.Repeat("|-", ibmMFMGap1)
	amPattern := sync + pattern.MakeMark(0x0a, 0xa1) + pattern.MakeMark(0x0a, 0xa1) +
		pattern.MakeMark(0x0a, 0xa1) + pattern.MakeMark(0x00, 0xfe)
	dataPattern := sync + pattern.MakeMark(0x0a, 0xa1) + pattern.MakeMark(0x0a, 0xa1) +
		pattern.MakeMark(0x0a, 0xa1) + pattern.MakeMark(0x00, 0xfb)
	deletePattern := sync + pattern.MakeMark(0x0a, 0xa1) + pattern.MakeMark(0x0a, 0xa1) +
		pattern.MakeMark(0x0a, 0xa1) + pattern.MakeMark(0x03, 0xf8)

	found := false
	for _, start := range pattern.Iter(flux, amPattern) {
		amPos := start + len(amPattern)
		lo, hi := amPos-64, amPos+6*16
		if lo < 0 || hi > len(flux) {
			continue
		}
		addressMark, err := pattern.DataMFM(flux[lo:hi])
		if err != nil || pattern.CRC16CCITTFalse(0xffff, addressMark) != 0 {
			continue
		}
		chs := media.CHS{Cylinder: int(addressMark[4]), Head: int(addressMark[5]), Sector: int(addressMark[6])}
		sectorSize := 128 << addressMark[7]
		extra := []string{"mode=MFM", fmt.Sprintf("clock=%d", int(clock))}

		dataPos := pattern.FindWithin(flux, dataPattern, amPos+20*16, amPos+ibmMFMMaxGap2*16)
		if dataPos < 0 {
			dataPos = pattern.FindWithin(flux, deletePattern, amPos, amPos+ibmMFMMaxGap2*16)
			if dataPos >= 0 {
				extra = append(extra, "deleted")
			}
		}
		if dataPos < 0 {
			continue
		}
		dataPos += len(dataPattern)

		off := -4 * 16
		width := (6 + sectorSize) * 16
		lo, hi = dataPos+off, dataPos+width+off
		if lo < 0 || hi > len(flux) {
			continue
		}
		data, err := pattern.DataMFM(flux[lo:hi])
		if err != nil || pattern.CRC16CCITTFalse(0xffff, data) != 0 {
			continue
		}

		payload := append([]byte{}, data[4:4+sectorSize]...)
		rs := media.NewReadSector(source, amPos, chs, hint, payload, extra, true)
		m.AddReading(rs)
		found = true
	}
	return found
}
