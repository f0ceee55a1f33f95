package media

// Status glyphs, matching the original heat-scale: no readings, conflicting
// payloads with a majority, conflicting payloads with none, wrong length in
// either direction, and a read-count heat glyph otherwise.
const (
	GlyphMissing  = 'x'
	GlyphMajority = '░'
	GlyphMismatch = '╬'
	GlyphTooLong  = '>'
	GlyphTooShort = '<'
)

var heatGlyphs = []rune("×▁▂▃▄▅▆▇█")
var heatGlyphsVert = []rune("×▏▎▌▋▊▉█")

// MediaSector aggregates every ReadSector observed at one physical CHS.
type MediaSector struct {
	AMChs        *CHS // nil until the first reading sets it
	PhysChs      CHS
	Readings     []*ReadSector
	values       map[string][]*ReadSector // payload bytes -> readings producing it
	SectorLength *int
	lengths      map[int]bool
	Flags        map[string]bool

	cachedMajority    []byte
	majorityComputed  bool
	cachedStatusOK    bool
	cachedStatusGlyph rune
	cachedStatusLen   int
	statusVert        bool
	statusComputed    bool
}

// NewMediaSector creates a MediaSector for physChs. amChs may be nil if the
// sector is only declared (define_sector), not yet read.
func NewMediaSector(amChs *CHS, physChs CHS, sectorLength *int) *MediaSector {
	return &MediaSector{
		AMChs:        amChs,
		PhysChs:      physChs,
		values:       make(map[string][]*ReadSector),
		SectorLength: sectorLength,
		lengths:      make(map[int]bool),
		Flags:        make(map[string]bool),
	}
}

func (ms *MediaSector) SetFlag(flag string) { ms.Flags[flag] = true }
func (ms *MediaSector) HasFlag(flag string) bool { return ms.Flags[flag] }

// AddReading appends one reading, updates the payload-value index, and
// invalidates the cached status. A length declared via DefineSector is kept
// as it is. Otherwise SectorLength follows the readings: the length they
// share, or unknown (nil) once readings of more than one distinct length
// have been seen.
func (ms *MediaSector) AddReading(rs *ReadSector) {
	if ms.AMChs == nil {
		amChs := rs.AMChs
		ms.AMChs = &amChs
	}
	ms.Readings = append(ms.Readings, rs)
	key := string(rs.Octets)
	ms.values[key] = append(ms.values[key], rs)
	ms.lengths[len(rs.Octets)] = true
	if ms.HasFlag("defined") && ms.SectorLength != nil {
		// Keep the declared length.
	} else if len(ms.lengths) == 1 {
		n := len(rs.Octets)
		ms.SectorLength = &n
	} else {
		ms.SectorLength = nil
	}
	ms.invalidateCache()
}

func (ms *MediaSector) invalidateCache() {
	ms.majorityComputed = false
	ms.statusComputed = false
}

// FindMajority considers the payloads whose length matches SectorLength (all
// payloads when it is nil) and picks the one read most often. It returns
// that payload when its read count strictly exceeds twice the number of
// distinct payloads considered minus that read count, and nil otherwise: two
// agreeing readings out of three qualify, three distinct payloads do not.
// Between payloads tied on read count, which one is picked is not defined.
func (ms *MediaSector) FindMajority() []byte {
	if ms.majorityComputed {
		return ms.cachedMajority
	}
	var chosen []byte
	majority := 0
	count := 0
	for payload, readings := range ms.values {
		if ms.SectorLength != nil && len(payload) != *ms.SectorLength {
			continue
		}
		count++
		if len(readings) > majority {
			majority = len(readings)
			chosen = []byte(payload)
		}
	}
	minority := count - majority
	var result []byte
	if majority > 2*minority {
		result = chosen
	}
	ms.cachedMajority = result
	ms.majorityComputed = true
	return result
}

// Status reports whether the sector is considered recovered, a glyph
// summarizing why not, and the payload length backing a majority/sole
// reading (0 if none). vert selects the vertical (picture_sec_y) heat-glyph
// scale instead of the horizontal one. The result is cached for the most
// recently requested layout only; asking for the other layout recomputes it.
func (ms *MediaSector) Status(vert bool) (ok bool, glyph rune, length int) {
	if ms.statusComputed && ms.statusVert == vert {
		return ms.cachedStatusOK, ms.cachedStatusGlyph, ms.cachedStatusLen
	}
	ok, glyph, length = ms.computeStatus(vert)
	ms.cachedStatusOK = ok
	ms.cachedStatusGlyph = glyph
	ms.cachedStatusLen = length
	ms.statusVert = vert
	ms.statusComputed = true
	return
}

func (ms *MediaSector) computeStatus(vert bool) (bool, rune, int) {
	if len(ms.values) == 0 {
		return false, GlyphMissing, 0
	}
	maj := ms.FindMajority()
	if len(ms.values) > 1 && maj != nil {
		return true, GlyphMajority, len(maj)
	}
	if len(ms.values) > 1 {
		return false, GlyphMismatch, 0
	}
	if ms.SectorLength != nil {
		var sole string
		for k := range ms.values {
			sole = k
		}
		if len(sole) > *ms.SectorLength {
			return false, GlyphTooLong, 0
		}
		if len(sole) < *ms.SectorLength {
			return false, GlyphTooShort, 0
		}
	}
	glyphs := heatGlyphs
	if vert {
		glyphs = heatGlyphsVert
	}
	idx := len(ms.Readings)
	if idx >= len(glyphs) {
		idx = len(glyphs) - 1
	}
	return true, glyphs[idx], len(maj)
}
