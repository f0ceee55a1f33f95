package pattern

// CRC-16 implementations. None of these are available from any library in
// the examples pack (no CRC-16 package is imported anywhere in the corpus),
// and the teacher's own mfm/reader.go and mfm/writer.go call
// crc16CCITTByte/crc16CCITT without ever defining them, so these are written
// from scratch against the well-known polynomials and confirmed against the
// original Python's crcmod.predefined names.

// CRC16CCITTFalseByte folds one byte into a CRC-16-CCITT ("false") running
// value: polynomial 0x1021, no input/output reflection. The IBM, DEC RX02
// and HP 9885 recognizers fold each whole field, mark bytes and trailing CRC
// included, through CRC16CCITTFalse from a 0xffff seed and accept a zero
// result.
func CRC16CCITTFalseByte(crc uint16, b byte) uint16 {
	crc ^= uint16(b) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = (crc << 1) ^ 0x1021
		} else {
			crc <<= 1
		}
	}
	return crc
}

// CRC16CCITTFalse folds a byte slice into a running CRC-16-CCITT value.
func CRC16CCITTFalse(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = CRC16CCITTFalseByte(crc, b)
	}
	return crc
}

// ReverseByte reverses the bit order of a single byte. The HP 9885
// recognizer checks a sector's CRC against its bytes as decoded, then
// bit-reverses every byte of the address and data fields before reading
// CHS and payload out of them — the medium itself stores each byte LSB
// first.
func ReverseByte(b byte) byte {
	var out byte
	for i := 0; i < 8; i++ {
		out = (out << 1) | (b & 1)
		b >>= 1
	}
	return out
}

// ReverseBytes returns a copy of data with every byte bit-reversed.
func ReverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = ReverseByte(b)
	}
	return out
}

// CRC16Buypass folds a byte slice into a running CRC-16/BUYPASS value:
// polynomial 0x8005, no reflection, no final XOR. Wang WCS prefixes the
// checked payload with a literal 0x03 byte before folding; Zilog MCZ folds
// the field (including its own trailing CRC bytes) with no prefix.
func CRC16Buypass(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// CRC16Xmodem folds a byte slice into a running CRC-16/XMODEM value:
// polynomial 0x1021, seed 0, no reflection — used by Intel ISIS. This is the
// same polynomial as CRC-16-CCITT-false but with a conventional zero seed;
// kept as a distinct named entry point so callers don't have to remember
// which seed a format wants.
func CRC16Xmodem(data []byte) uint16 {
	return CRC16CCITTFalse(0, data)
}

// BogoCRC implements the DG Nova track format's deliberately weak checksum:
// polynomial x^16 + x^8 + 1, but folded per byte position modulo 3 instead
// of through a shift register, so it misses many real error patterns (e.g.
// transposed bytes at the same position-class cancel out). Byte index n%3==0
// XORs into both halves of the 16-bit accumulator, n%3==1 into the low half
// only, n%3==2 into the high half only.
func BogoCRC(data []byte) uint16 {
	var acc uint16
	for n, b := range data {
		switch n % 3 {
		case 0:
			acc ^= uint16(b) | uint16(b)<<8
		case 1:
			acc ^= uint16(b)
		case 2:
			acc ^= uint16(b) << 8
		}
	}
	return acc
}

// ByteSum16 is a plain 16-bit sum checksum over data. The Ohio Scientific
// and Q1 MicroLite recognizers compute their own sums and do not call it.
func ByteSum16(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}
