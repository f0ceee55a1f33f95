// Package chsset compresses large lists of (cylinder, head, sector, length)
// tuples into compact cluster expressions for status reporting.
package chsset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SummarizeInts renders a set of integers as an interval-notation string:
// a single value prints bare, a run of two consecutive values prints as
// "{a,b}", and longer runs collapse to "{lo…hi}", joined by commas and
// wrapped in braces unless the whole set is a single value.
func SummarizeInts(data []int) string {
	uniq := make(map[int]bool, len(data))
	for _, v := range data {
		uniq[v] = true
	}
	values := make([]int, 0, len(uniq))
	for v := range uniq {
		values = append(values, v)
	}
	sort.Ints(values)

	type run struct{ lo, hi int }
	var runs []run
	for _, v := range values {
		if len(runs) > 0 && runs[len(runs)-1].hi+1 == v {
			runs[len(runs)-1].hi = v
		} else {
			runs = append(runs, run{v, v})
		}
	}

	if len(runs) == 1 && runs[0].lo == runs[0].hi {
		return strconv.Itoa(runs[0].lo)
	}

	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		switch {
		case r.lo == r.hi:
			parts = append(parts, strconv.Itoa(r.lo))
		case r.lo+1 == r.hi:
			parts = append(parts, strconv.Itoa(r.lo), strconv.Itoa(r.hi))
		default:
			parts = append(parts, fmt.Sprintf("%d…%d", r.lo, r.hi))
		}
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// entry is one (cylinder, head, sector, payload-length) tuple.
type entry struct {
	c, h, s, length int
}

// Set accumulates CHS entries and summarizes them into compact cluster
// expressions.
type Set struct {
	entries []entry
}

// New returns an empty Set.
func New() *Set {
	return &Set{}
}

// Add records one (cylinder, head, sector) tuple with an optional payload
// length (0 if not meaningful for the caller).
func (s *Set) Add(c, h, sec, length int) {
	s.entries = append(s.entries, entry{c, h, sec, length})
}

// Len returns the number of entries added.
func (s *Set) Len() int {
	return len(s.entries)
}

// Cylinders summarizes just the distinct cylinder numbers, as "c{...}".
func (s *Set) Cylinders() string {
	cyls := make([]int, len(s.entries))
	for i, e := range s.entries {
		cyls[i] = e.c
	}
	return "c" + SummarizeInts(cyls)
}

type wlEntry struct {
	c, h, s []int
	length  int
}

func axisEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[int]bool, len(a))
	for _, v := range a {
		am[v] = true
	}
	for _, v := range b {
		if !am[v] {
			return false
		}
	}
	return true
}

func axisUnion(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var out []int
	for _, v := range append(append([]int{}, a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}

// Seq renders clusters as "c{..}h{..}s{..}b<len>" strings, merging adjacent
// clusters along each axis in turn (sector, head, cylinder) when they agree
// on every other axis and share a payload length.
func (s *Set) Seq() []string {
	sorted := append([]entry{}, s.entries...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.c != b.c {
			return a.c < b.c
		}
		if a.h != b.h {
			return a.h < b.h
		}
		if a.s != b.s {
			return a.s < b.s
		}
		return a.length < b.length
	})

	wl := make([]wlEntry, len(sorted))
	for i, e := range sorted {
		wl[i] = wlEntry{c: []int{e.c}, h: []int{e.h}, s: []int{e.s}, length: e.length}
	}

	axis := func(w wlEntry, pivot int) []int {
		switch pivot {
		case 0:
			return w.c
		case 1:
			return w.h
		default:
			return w.s
		}
	}
	setAxis := func(w *wlEntry, pivot int, v []int) {
		switch pivot {
		case 0:
			w.c = v
		case 1:
			w.h = v
		default:
			w.s = v
		}
	}
	otherAxesEqual := func(a, b wlEntry, pivot int) bool {
		for axis2 := 0; axis2 < 3; axis2++ {
			if axis2 == pivot {
				continue
			}
			var av, bv []int
			switch axis2 {
			case 0:
				av, bv = a.c, b.c
			case 1:
				av, bv = a.h, b.h
			default:
				av, bv = a.s, b.s
			}
			if !axisEqual(av, bv) {
				return false
			}
		}
		return a.length == b.length
	}

	for _, pivot := range []int{2, 1, 0} {
		i := 0
		for i < len(wl)-1 {
			if !otherAxesEqual(wl[i], wl[i+1], pivot) {
				i++
				continue
			}
			merged := axisUnion(axis(wl[i], pivot), axis(wl[i+1], pivot))
			setAxis(&wl[i], pivot, merged)
			wl = append(wl[:i+1], wl[i+2:]...)
		}
	}

	out := make([]string, 0, len(wl))
	for _, w := range wl {
		out = append(out, fmt.Sprintf("c%sh%ss%sb%d",
			SummarizeInts(w.c), SummarizeInts(w.h), SummarizeInts(w.s), w.length))
	}
	return out
}
