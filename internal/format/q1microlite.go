package format

import (
	"bytes"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&Q1MicroLite{ident: "q1microlitefm", params: q1FMParams})
	Register(&Q1MicroLite{ident: "q1microlitemfm28", params: q1MFMParams(28)})
	Register(&Q1MicroLite{ident: "q1microlitemfm39", params: q1MFMParams(39)})
}

const q1CatalogEntrySize = 40

var (
	q1FMSync  = strings.Repeat("|---", 16)
	q1FMAM    = q1FMSync + pattern.MakeMarkFM(0xc7, 0xfe)
	q1FMDM    = q1FMSync + pattern.MakeMarkFM(0xc7, 0xfb)
	q1MFMSync = strings.Repeat("|-", 8) + "---|-"
	q1MFMAM   = q1MFMSync + pattern.MakeMark(0x20, 0x9e)
	q1MFMDM   = q1MFMSync + pattern.MakeMark(0x20, 0x9b)

	q1FMParams = q1Params{
		fm:           true,
		amPattern:    q1FMAM,
		dataPattern:  q1FMDM,
		gapLen:       100 * 32,
		cellsPerByte: 32,
		spec:         recovery.FM(),
		clock:        50,
	}
)

func q1MFMParams(clock float64) q1Params {
	return q1Params{
		amPattern:    q1MFMAM,
		dataPattern:  q1MFMDM,
		gapLen:       10 * 16,
		cellsPerByte: 16,
		spec:         recovery.Q1MFM(),
		clock:        clock,
	}
}

type q1Params struct {
	fm           bool
	amPattern    string
	dataPattern  string
	gapLen       int
	cellsPerByte int
	spec         []recovery.Threshold
	clock        float64
}

// Q1MicroLite recognizes Q1 Corporation MicroLite 8" floppies, in either its
// FM or one of two nonstandard-rate MFM encodings. Sector length is not
// fixed per disk: track 0 carries 40-byte catalog entries describing, per
// file, which cylinders and how many sectors per track it occupies and at
// what record length, so most tracks' sector length is only known once the
// relevant catalog entries have been decoded. Tracks whose length is still
// unknown when a stream is processed fall back to a length guessed from the
// most common data-field span and the most common position of a trailing
// 0x10 filler byte.
type Q1MicroLite struct {
	ident  string
	params q1Params
}

func (q *Q1MicroLite) Name() string      { return q.ident }
func (q *Q1MicroLite) Aliases() []string { return nil }

func (q *Q1MicroLite) Process(stream *kryoflux.Stream, m *media.Media) bool {
	if stream.Hint.Head != 0 {
		return false
	}
	encoding := "q1mfm"
	if q.params.fm {
		encoding = "fm"
	}
	flux := cellsAt(stream, encoding, q.params.spec, q.params.clock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: 0}
	return scanQ1MicroLite(flux, stream.Name, hint, q.params, q1CatalogFor(m), m)
}

type q1LaterEntry struct {
	chs  media.CHS
	data pattern.CellString
}

// scanQ1MicroLite splits flux on the address-mark pattern the way the
// original's split_stream does (each chunk after a match runs up to the
// next match, or end of stream), then splits each chunk again on the data
// mark. Chunks whose already-known sector length lets them decode
// immediately are attempted inline; the rest are deferred to
// q1GuessSectorLength once the whole stream has been scanned.
func scanQ1MicroLite(flux pattern.CellString, source string, hint media.CHS, p q1Params, cat *q1Catalog, m *media.Media) bool {
	found := false
	var later []q1LaterEntry

	for _, piece := range strings.Split(string(flux), p.amPattern)[1:] {
		parts := strings.SplitN(piece, p.dataPattern, 2)
		if len(parts) < 2 || len(parts[0]) > p.gapLen {
			continue
		}
		chs, ok := q1AMToCHS(p, pattern.CellString(parts[0]))
		if !ok {
			continue
		}
		chs.Head = 0

		ms, sectorLength := q1SectorLength(m, chs)
		dataFlux := pattern.CellString(parts[1])
		if sectorLength == nil {
			later = append(later, q1LaterEntry{chs: chs, data: dataFlux})
			continue
		}

		width := (*sectorLength + 2) * p.cellsPerByte
		if width > len(dataFlux) {
			continue
		}
		data, err := q1Decode(p, dataFlux[:width])
		if err != nil {
			continue
		}
		if attemptQ1Sector(m, cat, p, source, hint, chs, ms, *sectorLength, data) {
			found = true
		}
	}

	if len(later) > 0 && q1GuessSectorLength(m, cat, p, source, hint, later) {
		found = true
	}
	return found
}

func q1Decode(p q1Params, flux pattern.CellString) ([]byte, error) {
	if p.fm {
		return pattern.DataFM(flux)
	}
	return pattern.DataMFM(flux)
}

// q1AMToCHS decodes the address field at the very start of flux (no
// byte-width backup: flux already begins right after the address-mark sync
// pattern's own match). The FM and MFM variants use unrelated field layouts
// and self-checks: FM's 6-byte field is residue-checked as a plain sum over
// its first five bytes with a fixed 0x10 trailer; MFM's 4-byte field checks
// a literal cyl+sector==checksum equality with its own fixed 0x10 trailer.
func q1AMToCHS(p q1Params, flux pattern.CellString) (media.CHS, bool) {
	if p.fm {
		if len(flux) < 6*32 {
			return media.CHS{}, false
		}
		am, err := pattern.DataFM(flux[:6*32])
		if err != nil {
			return media.CHS{}, false
		}
		if am[0] != 0 || am[1] != 0 || am[5] != 0x10 || q1Sum8(am[:5]) != 0 {
			return media.CHS{}, false
		}
		return media.CHS{Cylinder: int(am[2]), Sector: int(am[3])}, true
	}
	if len(flux) < 4*16 {
		return media.CHS{}, false
	}
	am, err := pattern.DataMFM(flux[:4*16])
	if err != nil {
		return media.CHS{}, false
	}
	if am[3] != 0x10 || am[0]+am[1] != am[2] {
		return media.CHS{}, false
	}
	return media.CHS{Cylinder: int(am[0]), Sector: int(am[1])}, true
}

func q1Sum8(bs []byte) byte {
	var s byte
	for _, b := range bs {
		s += b
	}
	return s
}

func (p q1Params) goodChecksum(data []byte, sectorLength int) bool {
	if p.fm {
		return q1Sum8(data[:sectorLength+1]) == 0
	}
	return q1Sum8(data[:sectorLength])+0x9b == data[sectorLength]
}

// q1SectorLength mirrors Q1MicroLiteCommon.sector_length: track 0 always
// holds fixed 40-byte catalog entries; any other track's length comes from
// an earlier catalog-driven DefineSector call, or is unknown.
func q1SectorLength(m *media.Media, chs media.CHS) (*media.MediaSector, *int) {
	if chs.Cylinder == 0 {
		n := q1CatalogEntrySize
		return nil, &n
	}
	length, known := m.SectorLength(chs)
	if !known {
		return nil, nil
	}
	return m.GetSector(chs), length
}

// attemptQ1Sector mirrors Q1MicroLiteCommon.attempt_sector. The original
// also rejects a decode shorter than sectorLength+2 bytes; callers here
// never pass a short slice (scanQ1MicroLite bounds the flux window to the
// exact expected width before decoding, and q1GuessSectorLength skips any
// candidate shorter than sectorLength+2 itself), so that branch isn't
// ported.
func attemptQ1Sector(m *media.Media, cat *q1Catalog, p q1Params, source string, hint, chs media.CHS, ms *media.MediaSector, sectorLength int, data []byte) bool {
	good := true
	var flags []string
	switch {
	case ms != nil && ms.HasFlag("unused"):
		flags = append(flags, "unused")
	case !p.goodChecksum(data, sectorLength):
		good = false
		flags = append(flags, "SumError")
	}

	if good {
		payload := append([]byte{}, data[:sectorLength]...)
		rs := media.NewReadSector(source, 0, chs, hint, payload, flags, true)
		m.AddReading(rs)
		if _, known := m.SectorLength(media.CHS{}); !known {
			n := q1CatalogEntrySize
			m.DefineSector(media.CHS{}, &n)
		}
	}
	if good && chs.Cylinder == 0 {
		cat.catalogEntry(m, chs, data)
	}
	return good
}

// q1GuessSectorLength mirrors Q1MicroLiteCommon.guess_sector_length: guess a
// common sector length from the most common uncropped data-field cell span,
// decode each candidate to that length plus a 2-byte trailer, and take the
// most common position of a trailing 0x10 filler byte (minus one) as the
// real sector length.
//
// The original always divides flux length and decode width by 16 cells
// regardless of modulation, which would starve the FM variant's decode of
// half the cells it needs; this is corrected here to use the variant's own
// cellsPerByte, on the understanding that the original's single-floppy
// sample never actually exercised this fallback path on FM media.
func q1GuessSectorLength(m *media.Media, cat *q1Catalog, p q1Params, source string, hint media.CHS, later []q1LaterEntry) bool {
	lengthCounts := map[int]int{}
	for _, l := range later {
		lengthCounts[len(l.data)/p.cellsPerByte]++
	}
	commonLength := q1Mode(lengthCounts)

	type candidate struct {
		chs  media.CHS
		data []byte
	}
	var candidates []candidate
	tenCounts := map[int]int{}
	for _, l := range later {
		width := (commonLength + 2) * p.cellsPerByte
		if width > len(l.data) {
			width = len(l.data) - len(l.data)%p.cellsPerByte
		}
		data, err := q1Decode(p, l.data[:width])
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{l.chs, data})
		if idx := bytes.LastIndexByte(data, 0x10); idx > 0 {
			tenCounts[idx]++
		}
	}
	if len(tenCounts) == 0 {
		return false
	}
	sectorLength := q1Mode(tenCounts) - 1
	if sectorLength <= 0 {
		return false
	}

	found := false
	for _, c := range candidates {
		if len(c.data) < sectorLength+2 {
			continue
		}
		if attemptQ1Sector(m, cat, p, source, hint, c.chs, nil, sectorLength, c.data) {
			found = true
		}
	}
	return found
}

func q1Mode(counts map[int]int) int {
	best, bestCount := 0, -1
	for k, c := range counts {
		if c > bestCount {
			best, bestCount = k, c
		}
	}
	return best
}

// q1PendingEntry holds a non-catalog-track0-sector-0 catalog record seen
// before sector 0's INDEX record has been decoded.
type q1PendingEntry struct {
	chs  media.CHS
	data []byte
}

// q1Catalog is the whole-disk catalog state the original keeps directly on
// its Media subclass instance (self.catalog_todo/self.catalog_entries).
// Recognizers here are stateless singletons shared across every disk a run
// processes, so this state instead lives in a side table keyed by the
// *media.Media each disk already gets exactly one of.
type q1Catalog struct {
	mu      sync.Mutex
	pending []q1PendingEntry
	drained bool
}

var (
	q1CatalogsMu sync.Mutex
	q1Catalogs   = map[*media.Media]*q1Catalog{}
)

func q1CatalogFor(m *media.Media) *q1Catalog {
	q1CatalogsMu.Lock()
	defer q1CatalogsMu.Unlock()
	c, ok := q1Catalogs[m]
	if !ok {
		c = &q1Catalog{}
		q1Catalogs[m] = c
	}
	return c
}

// catalogEntry mirrors Q1MicroLiteCommon.catalog_entry: entries for sectors
// other than sector 0 are queued until sector 0's INDEX record has been
// seen, then every queued entry is replayed in arrival order.
func (c *q1Catalog) catalogEntry(m *media.Media, chs media.CHS, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chs.Sector != 0 && !c.drained {
		c.pending = append(c.pending, q1PendingEntry{chs, append([]byte{}, data...)})
		return
	}

	c.actuallyDoCatalogEntry(m, chs, data)
	if c.drained {
		return
	}
	c.drained = true
	pending := c.pending
	c.pending = nil
	for _, p := range pending {
		c.actuallyDoCatalogEntry(m, p.chs, p.data)
	}
}

// actuallyDoCatalogEntry mirrors
// Q1MicroLiteCommon.actually_do_catalog_entry: unpack the 20-byte catalog
// header (status, 8-byte name, count, record length, sectors per track,
// first and last cylinder) and, if it validates, declare every (cylinder,
// 0, sector) slot it claims, marking the tail past count as unused.
func (c *q1Catalog) actuallyDoCatalogEntry(m *media.Media, chs media.CHS, data []byte) {
	if chs.Sector != 0 {
		if _, known := m.SectorLength(chs); !known {
			return
		}
		if m.HasFlag(chs, "unused") {
			return
		}
	}

	const headerSize = 20
	if len(data) < headerSize {
		return
	}
	status := binary.LittleEndian.Uint16(data[0:2])
	if status != 0 {
		return
	}
	count := int(binary.LittleEndian.Uint16(data[10:12]))
	length := int(binary.LittleEndian.Uint16(data[12:14]))
	nsect := int(binary.LittleEndian.Uint16(data[14:16]))
	first := int(binary.LittleEndian.Uint16(data[16:18]))
	last := int(binary.LittleEndian.Uint16(data[18:20]))
	if last >= 80 {
		return
	}

	for cyl := first; cyl <= last; cyl++ {
		for sect := 0; sect < nsect; sect++ {
			target := media.CHS{Cylinder: cyl, Sector: sect}
			l := length
			ms := m.DefineSector(target, &l)
			if count == 0 {
				ms.SetFlag("unused")
			} else {
				count--
			}
		}
	}
}
