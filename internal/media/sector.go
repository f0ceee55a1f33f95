// Package media aggregates sector readings recovered from one or more
// streams of the same medium, tracking majority/conflict per physical
// sector and rendering completeness reports.
package media

import "bytes"

// CHS is a cylinder/head/sector address.
type CHS struct {
	Cylinder int
	Head     int
	Sector   int
}

// Less orders CHS triples lexicographically, matching the output image's
// sector ordering.
func (c CHS) Less(o CHS) bool {
	if c.Cylinder != o.Cylinder {
		return c.Cylinder < o.Cylinder
	}
	if c.Head != o.Head {
		return c.Head < o.Head
	}
	return c.Sector < o.Sector
}

// ReadSector is one successful decoding of a sector: which stream produced
// it, where in that stream's cell string, the address-mark CHS and the
// physical CHS derived from the stream's hint, the payload bytes, and a set
// of flags (e.g. "deleted", "mode=FM", "mode=MFM", "clock=50").
type ReadSector struct {
	Source  string
	RelPos  int
	AMChs   CHS
	PhysChs CHS
	Octets  []byte
	Good    bool
	Flags   map[string]bool
}

// NewReadSector builds a ReadSector. hintChs supplies the stream's physical
// cylinder/head hint; the sector number of PhysChs always comes from amChs,
// per the data model (the stream never knows the sector number on its own).
func NewReadSector(source string, relPos int, amChs, hintChs CHS, octets []byte, flags []string, good bool) *ReadSector {
	flagSet := make(map[string]bool, len(flags)+1)
	for _, f := range flags {
		flagSet[f] = true
	}
	if !good {
		flagSet["bad"] = true
	}
	return &ReadSector{
		Source:  source,
		RelPos:  relPos,
		AMChs:   amChs,
		PhysChs: CHS{Cylinder: hintChs.Cylinder, Head: hintChs.Head, Sector: amChs.Sector},
		Octets:  octets,
		Good:    good,
		Flags:   flagSet,
	}
}

// Equal reports whether two ReadSectors carry the same payload and
// good/bad status.
func (r *ReadSector) Equal(o *ReadSector) bool {
	return bytes.Equal(r.Octets, o.Octets) && r.Good == o.Good
}

// Len returns the payload length in bytes.
func (r *ReadSector) Len() int {
	return len(r.Octets)
}
