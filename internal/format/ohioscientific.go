package format

import (
	"errors"
	"io"
	"math/bits"

	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
	"github.com/sergev/fluxrecon/internal/pattern"
	"github.com/sergev/fluxrecon/internal/recovery"
)

func init() {
	Register(&OhioScientific{})
}

const (
	ohioSectorSize   = 0xf << 8
	ohioClock        = 50
	ohioBigGap       = 400
	ohioTransientGap = 30
)

var (
	ohioSpec       = recovery.FM()
	errOhioFraming = errors.New("format: ohioscientific framing error")
)

// OhioScientific recognizes OS65U 8" floppies. The format carries no address
// marks at all: each whole track is one long asynchronous byte-serial
// record (a 6850 UART's worth of start/data/parity/stop framing bit-banged
// onto FM flux), track 0 framed 8-bits-even-parity throughout and every
// other track switching from 8E to 8N three bytes in. A long run of idle
// ("mark") bits between characters marks a record boundary; track 0's
// record is a length-prefixed index, every other track's is a fixed layout
// with a 16-bit sum checksum at a fixed offset.
type OhioScientific struct{}

func (o *OhioScientific) Name() string      { return "ohioscientific" }
func (o *OhioScientific) Aliases() []string { return []string{"OS65U"} }

func (o *OhioScientific) Process(stream *kryoflux.Stream, m *media.Media) bool {
	flux := cellsAt(stream, "fm", ohioSpec, ohioClock)
	hint := media.CHS{Cylinder: stream.Hint.Cylinder, Head: stream.Hint.Head}
	return scanOhioScientific(flux, stream.Name, hint, m)
}

// ohioBitStream walks a cell string four cells at a time looking for the
// two FM bit patterns ("|---" for 1, "|-|-" for 0), falling back to a
// single-cell advance to resynchronize whenever neither matches.
type ohioBitStream struct {
	flux pattern.CellString
	pos  int
}

func (s *ohioBitStream) next() (int, bool) {
	for s.pos < len(s.flux) {
		if s.pos+4 <= len(s.flux) {
			switch string(s.flux[s.pos : s.pos+4]) {
			case "|---":
				s.pos += 4
				return 1, true
			case "|-|-":
				s.pos += 4
				return 0, true
			}
		}
		s.pos++
	}
	return 0, false
}

// ohioElement reads one asynchronous frame element: a run of idle '1' bits
// (returned as gap), the start bit that ends it (discarded), then nbit more
// bits assembled LSB-first into value.
func ohioElement(s *ohioBitStream, nbit int) (gap, value int, err error) {
	for {
		bit, ok := s.next()
		if !ok {
			return 0, 0, io.EOF
		}
		if bit == 0 {
			break
		}
		gap++
	}
	for i := 0; i < nbit; i++ {
		bit, ok := s.next()
		if !ok {
			return 0, 0, io.EOF
		}
		value |= bit << uint(i)
	}
	return gap, value, nil
}

// ohioRX8E reads one 8-bit, even-parity, one-stop-bit frame: 10 bits total,
// bit 8 the parity bit and bit 9 the stop bit.
func ohioRX8E(s *ohioBitStream) (gap, val int, err error) {
	gap, bits10, err := ohioElement(s, 10)
	if err != nil {
		return 0, 0, err
	}
	if bits10 == 0 {
		return 0, 0, errOhioFraming
	}
	if bits10&0x200 == 0 {
		return 0, 0, errOhioFraming
	}
	if bits.OnesCount(uint(bits10))&1 == 0 {
		return 0, 0, errOhioFraming
	}
	return gap, bits10 & 0xff, nil
}

// ohioRX8N reads one 8-bit, no-parity, one-stop-bit frame: 9 bits total,
// bit 8 the stop bit.
func ohioRX8N(s *ohioBitStream) (gap, val int, err error) {
	gap, bits9, err := ohioElement(s, 9)
	if err != nil {
		return 0, 0, err
	}
	if bits9 == 0 {
		return 0, 0, errOhioFraming
	}
	if bits9&0x100 == 0 {
		return 0, 0, errOhioFraming
	}
	return gap, bits9 & 0xff, nil
}

// scanOhioScientific runs the asynchronous byte-serial decode over the
// whole track and hands each record of more than 3000 decoded bytes to
// attemptOhioSector.
func scanOhioScientific(flux pattern.CellString, source string, hint media.CHS, m *media.Media) bool {
	s := &ohioBitStream{flux: flux}
	var record []byte
	found := false

	flush := func() {
		if len(record) > 3000 && attemptOhioSector(m, source, hint, record) {
			found = true
		}
		record = nil
	}

	for {
		var gap, val int
		var err error
		if hint.Cylinder == 0 || len(record) < 3 {
			gap, val, err = ohioRX8E(s)
		} else {
			gap, val, err = ohioRX8N(s)
		}
		if err == io.EOF {
			flush()
			break
		}
		if err != nil {
			flush()
			continue
		}

		if hint.Cylinder > 0 && len(record) == 3 && gap > 0 {
			if gap < ohioTransientGap && val >= 0xf0 {
				// Transient from the UART switching 8E to 8N framing.
				continue
			}
		}
		if gap > ohioBigGap {
			flush()
		}
		record = append(record, byte(val))
	}
	return found
}

// attemptOhioSector mirrors got()'s two branches: track 0 is a
// length-prefixed index record (its own third byte, scaled by 256, gives
// the record's real length), every other track is fixed layout with a
// 16-bit sum checksum over its first 3588 bytes. Every record is zero-padded
// out to the format's fixed sector size before being recorded.
//
// The decoded cylinder byte at record[2] is trusted for the physical
// cylinder on non-zero tracks rather than the stream's own KryoFlux
// position — that's what the original does (passing (b[2], 0, 0) straight
// to did_read_sector), since OS65U embeds the track number in the track's
// own payload rather than relying on capture-order bookkeeping.
func attemptOhioSector(m *media.Media, source string, hint media.CHS, record []byte) bool {
	b := append([]byte{}, record...)

	if hint.Cylinder == 0 {
		if len(b) < 3 {
			return false
		}
		w := int(b[2]) << 8
		if len(b) < w {
			return false
		}
		payload := make([]byte, ohioSectorSize)
		copy(payload, b[:w])
		rs := media.NewReadSector(source, 0, media.CHS{}, hint, payload, nil, true)
		m.AddReading(rs)
		return true
	}

	if len(b) < 3590 {
		return false
	}
	var sum int
	for _, v := range b[:3588] {
		sum += int(v)
	}
	sum &= 0xffff
	check := int(b[3588])<<8 | int(b[3589])
	if sum != check {
		return false
	}

	physHint := media.CHS{Cylinder: int(b[2]), Head: hint.Head}
	payload := make([]byte, ohioSectorSize)
	copy(payload, b[:3590])
	rs := media.NewReadSector(source, 1, media.CHS{Sector: 0}, physHint, payload, nil, true)
	m.AddReading(rs)
	return true
}
