package pdu

import (
	"strings"
)

// Type-of-address octets.
const (
	toaUnknown       byte = 0x81
	toaInternational byte = 0x91

	tonMask          byte = 0x70
	tonInternational byte = 0x10
	tonAlphanumeric  byte = 0x50
)

// semi-octet pad nibble used when the digit count is odd
const padNibble = 0x0F

// address is a normalised phone number.
type address struct {
	digits        string
	international bool
}

// parseNumber strips separators from a dialled number and validates that
// what remains is a semi-octet encodable digit string.
// maxAddressDigits is the longest number an address field carries: ten
// semi-octets.
const maxAddressDigits = 20

func parseNumber(number string) (address, error) {
	var a address
	s := strings.TrimSpace(number)
	if strings.HasPrefix(s, "+") {
		a.international = true
		s = s[1:]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '(', r == ')', r == '.':
		default:
			return address{}, encodingError("number %q contains non-dialable character %q", number, r)
		}
	}
	a.digits = b.String()
	if a.digits == "" {
		return address{}, encodingError("number %q has no digits", number)
	}
	if len(a.digits) > maxAddressDigits {
		return address{}, encodingError("number %q has %d digits, at most %d fit an address", number, len(a.digits), maxAddressDigits)
	}
	return a, nil
}

func (a address) String() string {
	if a.international {
		return "+" + a.digits
	}
	return a.digits
}

func (a address) toa() byte {
	if a.international {
		return toaInternational
	}
	return toaUnknown
}

// semiOctets packs the digits two per octet, low nibble first, padding an
// odd count with 0xF.
func (a address) semiOctets() []byte {
	out := make([]byte, (len(a.digits)+1)/2)
	for i := 0; i < len(a.digits); i++ {
		d := a.digits[i] - '0'
		if i%2 == 0 {
			out[i/2] = padNibble<<4 | d
		} else {
			out[i/2] = out[i/2]&0x0F | d<<4
		}
	}
	return out
}

// destination returns the TP-DA field: digit count, type of address and the
// semi-octets. The length octet counts real digits, not the pad nibble.
func (a address) destination() []byte {
	out := []byte{byte(len(a.digits)), a.toa()}
	return append(out, a.semiOctets()...)
}

// serviceCenter returns the SCA prefix of a PDU. Its length octet counts the
// type-of-address octet plus the semi-octets. An empty number yields the
// single octet 0x00, letting the device use the SIM default.
func serviceCenter(number string) ([]byte, error) {
	if strings.TrimSpace(number) == "" {
		return []byte{0x00}, nil
	}
	a, err := parseNumber(number)
	if err != nil {
		return nil, err
	}
	digits := a.semiOctets()
	out := []byte{byte(len(digits) + 1), a.toa()}
	return append(out, digits...), nil
}

var semiOctetDigits = [16]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '*', '#', 'a', 'b', 'c', 0}

// unswap reverses semi-octet packing. count limits the number of digits
// read; a negative count reads until the pad nibble.
func unswap(b []byte, count int) (string, error) {
	var s strings.Builder
	for _, o := range b {
		for _, n := range [2]byte{o & 0x0F, o >> 4} {
			if count >= 0 && s.Len() == count {
				return s.String(), nil
			}
			if n == padNibble {
				return s.String(), nil
			}
			s.WriteByte(semiOctetDigits[n])
		}
	}
	if count > s.Len() {
		return "", decodingError("address holds %d digits, length field says %d", s.Len(), count)
	}
	return s.String(), nil
}

func prefixed(toa byte, digits string) string {
	if toa&tonMask == tonInternational && digits != "" {
		return "+" + digits
	}
	return digits
}

// readServiceCenter consumes the SCA prefix.
func readServiceCenter(r *reader) (string, error) {
	n, err := r.byte("service centre length")
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	field, err := r.next(int(n), "service centre address")
	if err != nil {
		return "", err
	}
	digits, err := unswap(field[1:], -1)
	if err != nil {
		return "", err
	}
	return prefixed(field[0], digits), nil
}

// readAddress consumes an originating or destination address field.
func readAddress(r *reader) (string, error) {
	count, err := r.byte("address length")
	if err != nil {
		return "", err
	}
	toa, err := r.byte("type of address")
	if err != nil {
		return "", err
	}
	field, err := r.next((int(count)+1)/2, "address")
	if err != nil {
		return "", err
	}
	if toa&tonMask == tonAlphanumeric {
		septets := int(count) * 4 / 7
		return decodeGSM7(unpackSeptets(field, 0, septets)), nil
	}
	digits, err := unswap(field, int(count))
	if err != nil {
		return "", err
	}
	return prefixed(toa, digits), nil
}
