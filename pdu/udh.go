package pdu

// User data header information element identifiers.
const (
	ieiConcat8  = 0x00
	ieiConcat16 = 0x08
)

// concatHeader returns the 6 octet UDH used for every concatenated part:
// UDHL, IEI 0x00, IEDL 3, reference, count, sequence.
func concatHeader(ref, count, seq int) []byte {
	return []byte{0x05, ieiConcat8, 0x03, byte(ref), byte(count), byte(seq)}
}

// parseHeader walks the information elements of a UDH, udh excluding its
// length octet. The concatenation element, 8 or 16-bit reference, is the only
// one interpreted; others are skipped.
func parseHeader(udh []byte) (*Concat, error) {
	var concat *Concat
	for i := 0; i < len(udh); {
		if i+2 > len(udh) {
			return nil, decodingError("truncated information element at header offset %d", i)
		}
		iei, l := udh[i], int(udh[i+1])
		i += 2
		if i+l > len(udh) {
			return nil, decodingError("information element 0x%02X needs %d octets, %d left", iei, l, len(udh)-i)
		}
		v := udh[i : i+l]
		i += l

		switch {
		case iei == ieiConcat8 && l == 3:
			concat = &Concat{Reference: int(v[0]), Count: int(v[1]), Sequence: int(v[2])}
		case iei == ieiConcat16 && l == 4:
			concat = &Concat{Reference: int(v[0])<<8 | int(v[1]), Count: int(v[2]), Sequence: int(v[3])}
		}
	}
	return concat, nil
}
