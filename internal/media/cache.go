package media

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// CacheCorruptionError reports a cache file line that could not be parsed.
// Cache corruption is always fatal: a half-understood cache risks silently
// dropping readings, which defeats the whole point of caching them.
type CacheCorruptionError struct {
	Line   int
	Text   string
	Reason string
}

func (e *CacheCorruptionError) Error() string {
	return fmt.Sprintf("cache file corrupt at line %d (%q): %s", e.Line, e.Text, e.Reason)
}

// CacheEntryKind distinguishes the record types a cache file holds.
type CacheEntryKind int

const (
	CacheEntryFile CacheEntryKind = iota
	CacheEntrySector
	CacheEntryFormat
)

// CacheEntry is one parsed line of a cache file. File holds the relevant
// string payload for both CacheEntryFile (a relative stream filename) and
// CacheEntryFormat (a recognizer name) records.
type CacheEntry struct {
	Kind   CacheEntryKind
	File   string
	Sector *ReadSector
}

// CacheFile is an append-only log of "file", "sector" and "format" records,
// replayed on the next run so streams already processed are skipped,
// sectors already recovered are not re-decoded from scratch, and the
// winning recognizer need not be rediscovered.
type CacheFile struct {
	f *os.File
	w *bufio.Writer
}

// OpenCacheFileAppend opens path for appending, creating it if necessary.
func OpenCacheFileAppend(path string) (*CacheFile, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &CacheFile{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteSector appends one sector record, flags sorted for a stable diff.
func (c *CacheFile) WriteSector(rs *ReadSector) error {
	flags := make([]string, 0, len(rs.Flags))
	for f := range rs.Flags {
		flags = append(flags, f)
	}
	sort.Strings(flags)

	fields := []string{
		"sector",
		rs.Source,
		strconv.Itoa(rs.RelPos),
		fmt.Sprintf("%d,%d,%d", rs.PhysChs.Cylinder, rs.PhysChs.Head, rs.PhysChs.Sector),
		fmt.Sprintf("%d,%d,%d", rs.AMChs.Cylinder, rs.AMChs.Head, rs.AMChs.Sector),
		hex.EncodeToString(rs.Octets),
	}
	fields = append(fields, flags...)
	if _, err := c.w.WriteString(strings.Join(fields, " ") + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteFormat appends a "format" record naming the recognizer that decoded
// this medium, so a later `write` run can pick the right output label
// without re-reading any stream file.
func (c *CacheFile) WriteFormat(name string) error {
	if _, err := c.w.WriteString("format " + name + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteFile appends a "file" record marking relFilename as fully processed.
func (c *CacheFile) WriteFile(relFilename string) error {
	if _, err := c.w.WriteString("file " + relFilename + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close closes the underlying file.
func (c *CacheFile) Close() error {
	return c.f.Close()
}

// ReadCacheFile parses every record in path. Blank lines and lines starting
// with '#' are ignored; anything else that doesn't match the "file",
// "sector" or "format" record shape is a CacheCorruptionError.
func ReadCacheFile(path string) ([]CacheEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []CacheEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "file":
			if len(fields) < 2 {
				return nil, &CacheCorruptionError{lineNo, line, "missing filename"}
			}
			entries = append(entries, CacheEntry{Kind: CacheEntryFile, File: fields[1]})
		case "sector":
			rs, err := parseCacheSectorLine(fields)
			if err != nil {
				return nil, &CacheCorruptionError{lineNo, line, err.Error()}
			}
			entries = append(entries, CacheEntry{Kind: CacheEntrySector, Sector: rs})
		case "format":
			if len(fields) < 2 {
				return nil, &CacheCorruptionError{lineNo, line, "missing format name"}
			}
			entries = append(entries, CacheEntry{Kind: CacheEntryFormat, File: fields[1]})
		default:
			return nil, &CacheCorruptionError{lineNo, line, "unknown record kind " + fields[0]}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseCacheSectorLine(fields []string) (*ReadSector, error) {
	if len(fields) < 6 {
		return nil, fmt.Errorf("expected at least 6 fields, got %d", len(fields))
	}
	relPos, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("bad rel_pos: %w", err)
	}
	physChs, err := parseCHSTriple(fields[3])
	if err != nil {
		return nil, fmt.Errorf("bad phys chs: %w", err)
	}
	amChs, err := parseCHSTriple(fields[4])
	if err != nil {
		return nil, fmt.Errorf("bad am chs: %w", err)
	}
	octets, err := hex.DecodeString(fields[5])
	if err != nil {
		return nil, fmt.Errorf("bad octet payload: %w", err)
	}
	flagSet := make(map[string]bool, len(fields)-6)
	for _, f := range fields[6:] {
		flagSet[f] = true
	}
	// The original cache format never persists the good/bad bit itself,
	// only the "bad" flag alongside it; a replayed reading is always
	// treated as good on load.
	return &ReadSector{
		Source:  fields[1],
		RelPos:  relPos,
		AMChs:   amChs,
		PhysChs: physChs,
		Octets:  octets,
		Good:    true,
		Flags:   flagSet,
	}, nil
}

func parseCHSTriple(s string) (CHS, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return CHS{}, fmt.Errorf("expected c,h,s, got %q", s)
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return CHS{}, err
		}
		vals[i] = v
	}
	return CHS{Cylinder: vals[0], Head: vals[1], Sector: vals[2]}, nil
}

// LoadCache replays a cache file into m, returning the set of relative
// stream filenames already marked done. A missing cache file is not an
// error: it just means nothing has been cached yet.
func (m *Media) LoadCache(path string) (map[string]bool, error) {
	entries, err := ReadCacheFile(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool)
	for _, e := range entries {
		switch e.Kind {
		case CacheEntryFile:
			done[e.File] = true
		case CacheEntrySector:
			m.AddReading(e.Sector)
		case CacheEntryFormat:
			m.format = e.File
		}
	}
	return done, nil
}
