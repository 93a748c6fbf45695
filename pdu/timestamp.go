package pdu

import (
	"time"
)

// bcd decodes one swapped semi-octet pair, low nibble being the tens digit.
func bcd(b byte) (int, bool) {
	lo, hi := b&0x0F, b>>4
	if lo > 9 || hi > 9 {
		return 0, false
	}
	return int(lo)*10 + int(hi), true
}

// decodeTimestamp parses the 7 octet service centre timestamp. The zone is
// in quarter hours with the sign in bit 3 of the first (tens) nibble.
func decodeTimestamp(b []byte) (time.Time, error) {
	if len(b) != 7 {
		return time.Time{}, decodingError("timestamp needs 7 octets, got %d", len(b))
	}
	var f [6]int
	for i := range f {
		v, ok := bcd(b[i])
		if !ok {
			return time.Time{}, decodingError("timestamp octet %d (0x%02X) is not decimal", i, b[i])
		}
		f[i] = v
	}

	tz := b[6]
	negative := tz&0x08 != 0
	quarters, ok := bcd(tz &^ 0x08)
	if !ok {
		return time.Time{}, decodingError("timezone octet 0x%02X is not decimal", tz)
	}
	offset := quarters * 15 * 60
	if negative {
		offset = -offset
	}

	year := 2000 + f[0]
	if f[0] >= 90 {
		year = 1900 + f[0]
	}
	loc := time.FixedZone("", offset)
	return time.Date(year, time.Month(f[1]), f[2], f[3], f[4], f[5], 0, loc), nil
}
