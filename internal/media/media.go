package media

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sergev/fluxrecon/internal/chsset"
)

// MissingEntry pairs a status glyph with the physical CHS it was recorded
// against, for Media.Missing's report.
type MissingEntry struct {
	Glyph rune
	CHS   CHS
}

// Media aggregates every sector reading recovered across one or more
// streams belonging to one physical disk. AddReading is safe to call from
// multiple format recognizers running concurrently; every other method
// expects to run after recognition has quiesced, but takes the same lock
// for simplicity.
type Media struct {
	Name string

	mu        sync.Mutex
	sectors   map[CHS]*MediaSector
	cylNo     map[int]bool
	hdNo      map[int]bool
	secNo     map[int]bool
	lengths   map[int]bool
	messages  map[string]bool
	nExpected int
	weirdAMs  int
	cache     *CacheFile
	format    string

	summaryCache *string
}

// CachedFormat returns the recognizer name a prior run recorded in this
// medium's cache file via LoadCache, if any.
func (m *Media) CachedFormat() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.format, m.format != ""
}

// SetFormat records name as the recognizer that decoded this medium and, if
// a cache file is attached, persists it for a later run to recover via
// CachedFormat.
func (m *Media) SetFormat(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.format = name
	if m.cache != nil {
		_ = m.cache.WriteFormat(name)
	}
}

// SetCacheFile attaches c so every subsequent AddReading is also appended to
// it, mirroring media.py's Media.add_read_sector writing through to its own
// self.cache_file. Pass nil to stop writing through (e.g. a "just try"
// run that should not persist anything).
func (m *Media) SetCacheFile(c *CacheFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = c
}

// NewMedia returns an empty Media named name.
func NewMedia(name string) *Media {
	return &Media{
		Name:     name,
		sectors:  make(map[CHS]*MediaSector),
		cylNo:    make(map[int]bool),
		hdNo:     make(map[int]bool),
		secNo:    make(map[int]bool),
		lengths:  make(map[int]bool),
		messages: make(map[string]bool),
	}
}

func copyIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// GetSector returns the MediaSector at chs, creating an empty, undeclared
// one if none exists yet.
func (m *Media) GetSector(chs CHS) *MediaSector {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSectorLocked(chs)
}

func (m *Media) getSectorLocked(chs CHS) *MediaSector {
	ms, ok := m.sectors[chs]
	if !ok {
		ms = NewMediaSector(nil, chs, nil)
		m.sectors[chs] = ms
	}
	return ms
}

func (m *Media) addMessage(msg string) {
	m.messages[msg] = true
}

// Messages returns the one-shot diagnostic messages raised so far (such as
// SECTOR_LENGTH_CONFUSION), sorted for a stable report.
func (m *Media) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.messages))
	for msg := range m.messages {
		out = append(out, msg)
	}
	sort.Strings(out)
	return out
}

// AddReading records one successful or failed decoding of a sector.
func (m *Media) AddReading(rs *ReadSector) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rs.AMChs != rs.PhysChs {
		m.weirdAMs++
	}
	ms, ok := m.sectors[rs.PhysChs]
	if !ok {
		amChs := rs.AMChs
		ms = NewMediaSector(&amChs, rs.PhysChs, nil)
		m.sectors[rs.PhysChs] = ms
	}
	ms.AddReading(rs)
	m.cylNo[rs.PhysChs.Cylinder] = true
	m.hdNo[rs.PhysChs.Head] = true
	m.secNo[rs.PhysChs.Sector] = true
	m.lengths[len(rs.Octets)] = true
	m.summaryCache = nil
	if m.cache != nil {
		// Cache corruption on write is treated the same as on read: the
		// operator finds out from the next run's CacheCorruptionError, not
		// from a write that AddReading's many callers can't usefully handle.
		_ = m.cache.WriteSector(rs)
	}
}

// DefineSector declares that chs is expected to exist, with the given
// sector length (nil if unknown). Declaring the same CHS twice with
// differing non-nil lengths raises the one-shot SECTOR_LENGTH_CONFUSION
// message instead of erroring; the first declared length wins.
func (m *Media) DefineSector(chs CHS, sectorLength *int) *MediaSector {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.sectors[chs]
	if !ok {
		ms = NewMediaSector(nil, chs, copyIntPtr(sectorLength))
		m.sectors[chs] = ms
	}
	switch {
	case !ms.HasFlag("defined"):
		ms.SectorLength = copyIntPtr(sectorLength)
		ms.SetFlag("defined")
		m.nExpected++
	case ms.SectorLength == nil:
		ms.SectorLength = copyIntPtr(sectorLength)
	case sectorLength != nil && *ms.SectorLength != *sectorLength:
		m.addMessage("SECTOR_LENGTH_CONFUSION")
	}
	m.cylNo[chs.Cylinder] = true
	m.hdNo[chs.Head] = true
	m.secNo[chs.Sector] = true
	return ms
}

// DefineGeometry pre-registers every sector in the rectangular range
// [first, last] (inclusive on all three axes) with the given sector
// length.
func (m *Media) DefineGeometry(first, last CHS, sectorLength int) {
	for c := first.Cylinder; c <= last.Cylinder; c++ {
		for h := first.Head; h <= last.Head; h++ {
			for s := first.Sector; s <= last.Sector; s++ {
				m.DefineSector(CHS{Cylinder: c, Head: h, Sector: s}, &sectorLength)
			}
		}
	}
}

// IsDefined reports whether chs has been declared via DefineSector or
// DefineGeometry, and whether it is known at all.
func (m *Media) IsDefined(chs CHS) (defined bool, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sectors[chs]
	if !ok {
		return false, false
	}
	return ms.HasFlag("defined"), true
}

// SectorLength returns the declared sector length for chs (nil if declared
// but not yet known, e.g. a catalog entry whose length field hasn't been
// read yet) and whether chs has been explicitly declared via
// DefineSector/DefineGeometry.
func (m *Media) SectorLength(chs CHS) (*int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sectors[chs]
	if !ok || !ms.HasFlag("defined") {
		return nil, false
	}
	return copyIntPtr(ms.SectorLength), true
}

// HasFlag reports whether chs carries flag, e.g. "unused" for a
// catalog-declared sector a format recognizer has determined is expected to
// hold no data.
func (m *Media) HasFlag(chs CHS, flag string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sectors[chs]
	if !ok {
		return false
	}
	return ms.HasFlag(flag)
}

// Majority returns the recovered payload for chs, and whether a majority
// was found.
func (m *Media) Majority(chs CHS) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, ok := m.sectors[chs]
	if !ok {
		return nil, false
	}
	maj := ms.FindMajority()
	return maj, maj != nil
}

// Status reports the recovery status of chs.
func (m *Media) Status(chs CHS) (ok bool, glyph rune, length int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ms, exists := m.sectors[chs]
	if !exists {
		return false, GlyphMissing, 0
	}
	return ms.Status(false)
}

// AnyGood reports whether at least one sector has recovered status.
func (m *Media) AnyGood() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.sectors {
		if ok, _, _ := ms.Status(false); ok {
			return true
		}
	}
	return false
}

func sortedKeys(s map[int]bool) []int {
	out := make([]int, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

// Missing lists every sector whose status is not "recovered", grouped by
// status glyph and then ordered by physical CHS.
func (m *Media) Missing() []MissingEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	grouped := map[rune][]CHS{}
	for _, ms := range m.sectors {
		ok, glyph, _ := ms.Status(false)
		if ok {
			continue
		}
		grouped[glyph] = append(grouped[glyph], ms.PhysChs)
	}
	glyphs := make([]rune, 0, len(grouped))
	for g := range grouped {
		glyphs = append(glyphs, g)
	}
	sort.Slice(glyphs, func(i, j int) bool { return glyphs[i] < glyphs[j] })

	var out []MissingEntry
	for _, g := range glyphs {
		chss := grouped[g]
		sort.Slice(chss, func(i, j int) bool { return chss[i].Less(chss[j]) })
		for _, chs := range chss {
			out = append(out, MissingEntry{Glyph: g, CHS: chs})
		}
	}
	return out
}

// Summary renders a one-line verdict: NOTHING if nothing recovered,
// COMPLETE (optionally with EXTRA) if every defined sector recovered, or
// a running good-sector count otherwise, with an AM mismatch counter
// appended when address-mark CHS ever disagreed with the stream's hint.
func (m *Media) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summaryCache != nil {
		return *m.summaryCache
	}

	ngood := 0
	nextra := 0
	goodset := chsset.New()
	parts := []string{m.Name}

	for _, ms := range m.sectors {
		ok, _, length := ms.Status(false)
		defd := ms.HasFlag("defined")
		switch {
		case ok && defd:
			ngood++
			goodset.Add(ms.PhysChs.Cylinder, ms.PhysChs.Head, ms.PhysChs.Sector, 0)
		case ok:
			nextra++
			sl := length
			if ms.SectorLength != nil {
				sl = *ms.SectorLength
			}
			goodset.Add(ms.PhysChs.Cylinder, ms.PhysChs.Head, ms.PhysChs.Sector, sl)
		}
	}

	switch {
	case ngood == 0 && nextra == 0:
		parts = append(parts, "NOTHING")
	case m.nExpected > 0 && ngood == m.nExpected:
		parts = append(parts, "COMPLETE")
		if nextra > 0 {
			parts = append(parts, "EXTRA")
		}
	default:
		parts = append(parts, fmt.Sprintf("✓: %d ", goodset.Len()))
	}
	if m.weirdAMs > 0 {
		parts = append(parts, fmt.Sprintf("AM!%d", m.weirdAMs))
	}

	result := strings.Join(parts, "  ")
	m.summaryCache = &result
	return result
}

// Picture renders a text map of recovery status across the whole disk: one
// row per sector number with one column per cylinder, or, when any sector
// number exceeds 32, one row per cylinder with one glyph per sector.
func (m *Media) Picture() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.hdNo) == 0 || len(m.cylNo) == 0 {
		return nil
	}
	secs := sortedKeys(m.secNo)
	if secs[len(secs)-1] > 32 {
		return m.pictureSecX()
	}
	return m.pictureSecY()
}

func (m *Media) picSecXLine(cylNo, headNo, minSec, maxSec int) string {
	var prefix string
	if len(m.hdNo) == 1 {
		prefix = fmt.Sprintf("%4d ", cylNo)
	} else {
		prefix = fmt.Sprintf("%4d,%2d ", cylNo, headNo)
	}

	var glyphs strings.Builder
	lens := map[int]int{}
	var lensOrder []int
	nsec := 0
	for sec := minSec; sec <= maxSec; sec++ {
		ms, ok := m.sectors[CHS{Cylinder: cylNo, Head: headNo, Sector: sec}]
		if !ok {
			glyphs.WriteByte(' ')
			continue
		}
		nsec++
		_, glyph, length := ms.Status(false)
		glyphs.WriteRune(glyph)
		if length > 0 {
			if _, seen := lens[length]; !seen {
				lensOrder = append(lensOrder, length)
			}
			lens[length]++
		}
	}

	var countLabel string
	if len(lensOrder) > 0 {
		best := lensOrder[0]
		for _, l := range lensOrder {
			if lens[l] > lens[best] {
				best = l
			}
		}
		countLabel = fmt.Sprintf("%d*%d", nsec, best)
	}
	for len(countLabel) < 9 {
		countLabel += " "
	}
	return prefix + countLabel + glyphs.String()
}

func (m *Media) pictureSecX() []string {
	cyls := sortedKeys(m.cylNo)
	heads := sortedKeys(m.hdNo)
	secs := sortedKeys(m.secNo)
	minSec, maxSec := secs[0], secs[len(secs)-1]

	rows := make([][]string, len(cyls))
	for i, c := range cyls {
		row := make([]string, len(heads))
		for j, h := range heads {
			row[j] = m.picSecXLine(c, h, minSec, maxSec)
		}
		rows[i] = row
	}

	widths := make([]int, len(heads))
	for col := range heads {
		for _, row := range rows {
			if len(row[col]) > widths[col] {
				widths[col] = len(row[col])
			}
		}
	}

	out := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for col, cell := range row {
			b.WriteString(cell)
			for i := len(cell); i < widths[col]+3; i++ {
				b.WriteByte(' ')
			}
		}
		out = append(out, strings.TrimRight(b.String(), " "))
	}
	return out
}

func (m *Media) picSecYLine(headNo, secNo, minCyl, maxCyl int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%2d ", secNo)
	for cyl := minCyl; cyl <= maxCyl; cyl++ {
		ms, ok := m.sectors[CHS{Cylinder: cyl, Head: headNo, Sector: secNo}]
		if !ok {
			b.WriteByte(' ')
			continue
		}
		_, glyph, _ := ms.Status(true)
		b.WriteRune(glyph)
	}
	return b.String()
}

func (m *Media) pictureSecY() []string {
	cyls := sortedKeys(m.cylNo)
	heads := sortedKeys(m.hdNo)
	secs := sortedKeys(m.secNo)
	minCyl, maxCyl := cyls[0], cyls[len(cyls)-1]
	minSec, maxSec := secs[0], secs[len(secs)-1]

	var l1, l2 strings.Builder
	for c := minCyl; c <= maxCyl; c++ {
		d := c % 10
		l2.WriteString(strconv.Itoa(d))
		if d == 0 {
			l1.WriteString(strconv.Itoa(c / 10))
		} else {
			l1.WriteString(" ")
		}
	}

	var out []string
	for _, h := range heads {
		out = append(out, "   "+l1.String())
		out = append(out, fmt.Sprintf("h%d ", h)+l2.String())
		for sec := minSec; sec <= maxSec; sec++ {
			out = append(out, m.picSecYLine(h, sec, minCyl, maxCyl))
		}
	}
	return out
}
