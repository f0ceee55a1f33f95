package media

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sergev/fluxrecon/internal/chsset"
)

const unreadFillPattern = "_UNREAD_"

func fillUnread(length int) []byte {
	out := make([]byte, length)
	for i := range out {
		out[i] = unreadFillPattern[i%len(unreadFillPattern)]
	}
	return out
}

// WriteResult writes the recovered binary image to baseName+".bin" and a
// DDHF-style metadata description to baseName+".bin.meta". Sectors are
// written in ascending CHS order; a sector flagged "unused" with no
// recovered majority is written as zeros, and any other sector without a
// recovered majority is filled with a repeating "_UNREAD_" pattern and
// listed in the metadata's bad-sector section. metaproto, when non-empty, is inserted
// verbatim ahead of the closing marker, and suppresses the default
// Media.Summary/Media.Description stanzas if it already supplies them.
func (m *Media) WriteResult(baseName, formatName, metaproto string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chss := make([]CHS, 0, len(m.sectors))
	for chs := range m.sectors {
		chss = append(chss, chs)
	}
	sort.Slice(chss, func(i, j int) bool { return chss[i].Less(chss[j]) })

	binPath := baseName + ".bin"
	f, err := os.Create(binPath)
	if err != nil {
		return err
	}
	defer f.Close()

	geom := chsset.New()
	var badSectors []CHS

	for _, chs := range chss {
		ms := m.sectors[chs]
		maj := ms.FindMajority()

		var payload []byte
		length := 0
		switch {
		case maj != nil:
			payload = maj
			length = len(maj)
		case ms.HasFlag("unused"):
			if ms.SectorLength != nil {
				length = *ms.SectorLength
			}
			payload = make([]byte, length)
		case ms.HasFlag("defined"):
			if ms.SectorLength != nil {
				length = *ms.SectorLength
			}
		}
		geom.Add(chs.Cylinder, chs.Head, chs.Sector, length)

		if payload != nil {
			if _, err := f.Write(payload); err != nil {
				return err
			}
			continue
		}
		badSectors = append(badSectors, chs)
		if _, err := f.Write(fillUnread(length)); err != nil {
			return err
		}
	}

	return writeMetadata(baseName, formatName, metaproto, geom, badSectors)
}

func writeMetadata(baseName, formatName, metaproto string, geom *chsset.Set, badSectors []CHS) error {
	metaPath := baseName + ".bin.meta"
	f, err := os.Create(metaPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var b bytes.Buffer
	fmt.Fprint(&b, "BitStore.Metadata_version:\n\t1.0\n")
	fmt.Fprint(&b, "\nBitStore.Access:\n\tpublic\n")
	fmt.Fprintf(&b, "\nBitStore.Filename:\n\t%s.BIN\n", baseName)
	fmt.Fprint(&b, "\nBitStore.Format:\n\tBINARY\n")

	fmt.Fprint(&b, "\nMedia.Geometry:\n")
	for _, cl := range geom.Seq() {
		fmt.Fprintf(&b, "\t%s\n", cl)
	}

	if !strings.Contains(metaproto, "Media.Summary:") {
		fmt.Fprintf(&b, "\nMedia.Summary:\n\t%s\n", baseName)
	}
	if metaproto != "" {
		b.WriteString(metaproto)
	}
	if !strings.Contains(metaproto, "Media.Description:") {
		fmt.Fprint(&b, "\nMedia.Description:\n")
	}
	fmt.Fprintf(&b, "\tFloppyTools format: %s\n", formatName)

	if len(badSectors) > 0 {
		fmt.Fprint(&b, "\t\n\tBad (unread) sectors:\n")
		bad := chsset.New()
		for _, chs := range badSectors {
			bad.Add(chs.Cylinder, chs.Head, chs.Sector, 0)
		}
		for _, cl := range bad.Seq() {
			fmt.Fprintf(&b, "\t\t%s\n", cl)
		}
	}
	fmt.Fprint(&b, "\n*END*\n")

	_, err = f.Write(b.Bytes())
	return err
}
