package pdu

// escape septet introducing a character from the extension table
const gsm7Escape = 0x1B

// GSM 03.38 default alphabet, indexed by septet value.
var gsm7Default = [128]rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', '\x1b', 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '¤', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}

// Extension table, reached through the escape septet.
var gsm7Extension = map[byte]rune{
	0x0A: '\f',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2F: '\\',
	0x3C: '[',
	0x3D: '~',
	0x3E: ']',
	0x40: '|',
	0x65: '€',
}

var (
	gsm7DefaultIndex   = make(map[rune]byte, len(gsm7Default))
	gsm7ExtensionIndex = make(map[rune]byte, len(gsm7Extension))
)

func init() {
	for i, r := range gsm7Default {
		if i == gsm7Escape {
			continue
		}
		gsm7DefaultIndex[r] = byte(i)
	}
	for s, r := range gsm7Extension {
		gsm7ExtensionIndex[r] = s
	}
}

// gsm7Septets maps one rune to its septet sequence: one septet for the
// default alphabet, two for the extension table. ok is false when the rune
// has no 7-bit representation.
func gsm7Septets(r rune) (septets []byte, ok bool) {
	if s, ok := gsm7DefaultIndex[r]; ok {
		return []byte{s}, true
	}
	if s, ok := gsm7ExtensionIndex[r]; ok {
		return []byte{gsm7Escape, s}, true
	}
	return nil, false
}

// encodeGSM7 returns the septets of each rune in text, one slice per rune, so
// callers can split between characters without breaking an escape pair.
func encodeGSM7(text []rune) (chars [][]byte, ok bool) {
	chars = make([][]byte, 0, len(text))
	for _, r := range text {
		s, ok := gsm7Septets(r)
		if !ok {
			return nil, false
		}
		chars = append(chars, s)
	}
	return chars, true
}

// decodeGSM7 maps septets back to text. An escape followed by a septet
// missing from the extension table yields a space, as recommended by
// GSM 03.38; a trailing lone escape is dropped.
func decodeGSM7(septets []byte) string {
	out := make([]rune, 0, len(septets))
	escaped := false
	for _, s := range septets {
		s &= 0x7F
		if escaped {
			escaped = false
			if r, ok := gsm7Extension[s]; ok {
				out = append(out, r)
			} else {
				out = append(out, ' ')
			}
			continue
		}
		if s == gsm7Escape {
			escaped = true
			continue
		}
		out = append(out, gsm7Default[s])
	}
	return string(out)
}

// packSeptets packs septets densely, least significant bit first, after fill
// leading zero bits. The fill lets a body start on a septet boundary when it
// follows a user data header.
func packSeptets(septets []byte, fill int) []byte {
	bits := fill + 7*len(septets)
	out := make([]byte, (bits+7)/8)
	for i, s := range septets {
		pos := fill + 7*i
		idx, shift := pos/8, pos%8
		out[idx] |= (s & 0x7F) << shift
		if shift > 1 {
			out[idx+1] |= (s & 0x7F) >> (8 - shift)
		}
	}
	return out
}

// unpackSeptets extracts count septets starting fill bits into data. Septets
// that would extend past data are not returned.
func unpackSeptets(data []byte, fill, count int) []byte {
	out := make([]byte, 0, count)
	for i := 0; i < count; i++ {
		pos := fill + 7*i
		idx, shift := pos/8, pos%8
		if idx >= len(data) {
			break
		}
		v := data[idx] >> shift
		if shift > 1 {
			if idx+1 >= len(data) {
				break
			}
			v |= data[idx+1] << (8 - shift)
		}
		out = append(out, v&0x7F)
	}
	return out
}
