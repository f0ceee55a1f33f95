// Package kryoflux deframes KryoFlux stream-frame capture files into ordered
// flux intervals and index events.
package kryoflux

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// Interval is the duration of a single flux cell, in sample clocks of the
// capture device.
type Interval uint32

// IndexEvent records one index-pulse observation: the stream byte offset at
// which it occurred and the cumulative sample time reached when its index
// block was parsed. The sample time is not interpolated to StreamOffset.
type IndexEvent struct {
	StreamOffset uint64
	SampleTime   uint64
}

// PhysicalCHS is the address hint carried by a stream's filename: cylinder
// and head are known, sector is always unknown at the stream level.
type PhysicalCHS struct {
	Cylinder int
	Head     int
}

// ErrNotAFluxStream is returned when a filename does not match the expected
// KryoFlux stream naming pattern.
var ErrNotAFluxStream = fmt.Errorf("kryoflux: filename does not match stream pattern")

// StreamMalformedError reports a framing error at a specific byte offset.
type StreamMalformedError struct {
	Offset int
	Reason string
}

func (e *StreamMalformedError) Error() string {
	return fmt.Sprintf("kryoflux: malformed stream at offset %d: %s", e.Offset, e.Reason)
}

var streamNamePattern = regexp.MustCompile(`bin(\d{2})\.(\d)\.raw$`)

// cellCacheKey identifies one clock-recovery trial against a Stream: the
// encoding the caller recovered cells under, plus the clock rate. Encoding
// is part of the key because the same clock rate is tried under more than
// one encoding (FM and MFM at 50, 80, 100 sample clocks); without it a
// second trial at a clock already seen would collide with the first.
type cellCacheKey struct {
	encoding string
	clock    float64
}

// Stream owns the deframed contents of one captured track: its physical
// address hint, capture clocks, flux intervals, and index events. Cell
// strings recovered from its intervals are cached per (encoding, clock
// rate) pair, lazily populated by internal/format and retained for the
// life of the Stream. The cache holds raw bytes rather than a recovery
// type to avoid an import cycle (internal/recovery imports this package
// for Interval).
type Stream struct {
	Name      string // relative filename, used as ReadSector.Source
	Hint      PhysicalCHS
	SampleClk float64 // sck, ticks per second of the capture clock
	IndexClk  float64 // ick, ticks per second of the index clock
	Intervals []Interval
	Indices   []IndexEvent
	ResultCode int

	cellCache map[cellCacheKey][]byte
}

// CachedCells returns the cell string previously cached for (encoding,
// clock), if any.
func (s *Stream) CachedCells(encoding string, clock float64) ([]byte, bool) {
	cells, ok := s.cellCache[cellCacheKey{encoding, clock}]
	return cells, ok
}

// CacheCells stores cells as the recovery result for (encoding, clock),
// for reuse by later trials against the same Stream.
func (s *Stream) CacheCells(encoding string, clock float64, cells []byte) {
	if s.cellCache == nil {
		s.cellCache = make(map[cellCacheKey][]byte)
	}
	s.cellCache[cellCacheKey{encoding, clock}] = cells
}

// Open reads and deframes a KryoFlux stream file. The relative name used for
// Stream.Name and for parsing the physical CHS hint is the base filename.
func Open(path string) (*Stream, error) {
	hint, err := parseHint(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kryoflux: reading %s: %w", path, err)
	}
	s := &Stream{
		Name: filepath.Base(path),
		Hint: hint,
	}
	if err := s.deframe(data); err != nil {
		return nil, err
	}
	return s, nil
}

// parseHint extracts the physical cylinder/head hint from a stream filename
// of the form "<prefix>bin<CC>.<H>.raw".
func parseHint(name string) (PhysicalCHS, error) {
	m := streamNamePattern.FindStringSubmatch(name)
	if m == nil {
		return PhysicalCHS{}, fmt.Errorf("%w: %q", ErrNotAFluxStream, name)
	}
	cyl, err := strconv.Atoi(m[1])
	if err != nil {
		return PhysicalCHS{}, fmt.Errorf("%w: %q", ErrNotAFluxStream, name)
	}
	head, err := strconv.Atoi(m[2])
	if err != nil {
		return PhysicalCHS{}, fmt.Errorf("%w: %q", ErrNotAFluxStream, name)
	}
	return PhysicalCHS{Cylinder: cyl, Head: head}, nil
}

// IterIntervals returns the deframed intervals in stream order. The slice is
// owned by the Stream and must not be mutated by callers.
func (s *Stream) IterIntervals() []Interval {
	return s.Intervals
}

// IndexEvents returns the index-pulse observations in stream order.
func (s *Stream) IndexEvents() []IndexEvent {
	return s.Indices
}
