// Package format recognizes vintage floppy sector encodings inside a
// deframed KryoFlux stream and feeds every sector it can decode into an
// internal/media.Media aggregator.
package format

import (
	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

// Recognizer attempts to decode one stream as a particular disk format,
// adding every sector it finds to m. It returns true if it decoded at
// least one sector.
type Recognizer interface {
	Name() string
	Aliases() []string
	Process(stream *kryoflux.Stream, m *media.Media) bool
}

var registry []Recognizer

// Register adds r to the set of recognizers tried by ProcessStream.
func Register(r Recognizer) {
	registry = append(registry, r)
}

// All returns the currently registered recognizers, in try order.
func All() []Recognizer {
	out := make([]Recognizer, len(registry))
	copy(out, registry)
	return out
}

// Reorder moves every recognizer named (by Name() or an Alias()) in order,
// in that order, to the front of the registry; any recognizer not mentioned
// keeps its relative position and is appended after. It is meant to be
// called once at startup from a configured recognizer try-order, seeding
// the same rotating work list ProcessStream otherwise grows from scratch.
// Unknown names are ignored.
func Reorder(order []string) {
	picked := make([]Recognizer, 0, len(order))
	used := make(map[Recognizer]bool, len(order))
	for _, name := range order {
		for _, r := range registry {
			if used[r] {
				continue
			}
			if r.Name() == name || containsString(r.Aliases(), name) {
				picked = append(picked, r)
				used[r] = true
				break
			}
		}
	}
	for _, r := range registry {
		if !used[r] {
			picked = append(picked, r)
		}
	}
	registry = picked
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// ProcessStream tries every registered recognizer against stream, stopping
// at the first one that decodes anything. Whichever recognizer wins is
// rotated to the front of the registry, so a directory dominated by one
// format pays the trial cost only once.
func ProcessStream(stream *kryoflux.Stream, m *media.Media) (Recognizer, bool) {
	for i := 0; i < len(registry); i++ {
		r := registry[0]
		registry = append(registry[1:], r)
		if r.Process(stream, m) {
			registry = append([]Recognizer{r}, registry[:len(registry)-1]...)
			return r, true
		}
	}
	return nil, false
}

// cellsAt recovers a cell string from stream's intervals at clock using the
// given threshold spec, identified by encoding for caching purposes.
// Recovering the same (encoding, clock) pair against a stream twice (as
// happens when a recognizer trials several encodings across the same
// clock ladder) reuses the first result instead of rerunning clock
// recovery from scratch.
func cellsAt(stream *kryoflux.Stream, encoding string, spec []recovery.Threshold, clock float64) pattern.CellString {
	if cached, ok := stream.CachedCells(encoding, clock); ok {
		return pattern.CellString(cached)
	}
	rec := recovery.New(spec, clock)
	cells := rec.Process(stream.IterIntervals())
	stream.CacheCells(encoding, clock, []byte(cells))
	return pattern.CellString(cells)
}
