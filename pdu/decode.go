package pdu

import (
	"encoding/hex"
	"strings"

	"github.com/warthog618/sms/encoding/ucs2"
)

// reader consumes a PDU left to right, reporting which field ran past the
// end of the record.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) byte(field string) (byte, error) {
	if r.pos >= len(r.b) {
		return 0, decodingError("record ends before %s", field)
	}
	v := r.b[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) next(n int, field string) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, decodingError("%s needs %d octets, %d left", field, n, len(r.b)-r.pos)
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

func (r *reader) rest() []byte {
	return r.b[r.pos:]
}

// Decode parses one PDU line as produced by AT+CMGR or AT+CMGL: the service
// centre address followed by a DELIVER or SUBMIT TPDU, in hex. Concatenation
// metadata is reported on the message; parts are not merged (see Assembler).
func Decode(s string) (*Message, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, decodingError("invalid hex: %v", err)
	}
	r := &reader{b: raw}

	m := &Message{}
	if m.ServiceCenter, err = readServiceCenter(r); err != nil {
		return nil, err
	}
	fo, err := r.byte("first octet")
	if err != nil {
		return nil, err
	}
	m.Type = Type(fo & 0x03)

	var dcs byte
	switch m.Type {
	case TypeDeliver:
		if m.Number, err = readAddress(r); err != nil {
			return nil, err
		}
		if dcs, err = readProtocol(r); err != nil {
			return nil, err
		}
		scts, err := r.next(7, "timestamp")
		if err != nil {
			return nil, err
		}
		if m.Time, err = decodeTimestamp(scts); err != nil {
			return nil, err
		}
	case TypeSubmit:
		if _, err = r.byte("message reference"); err != nil {
			return nil, err
		}
		if m.Number, err = readAddress(r); err != nil {
			return nil, err
		}
		if dcs, err = readProtocol(r); err != nil {
			return nil, err
		}
		if _, err = r.next(validityLength(fo), "validity period"); err != nil {
			return nil, err
		}
	default:
		return nil, decodingError("%s messages are not supported", m.Type)
	}

	if m.Coding, err = codingOf(dcs); err != nil {
		return nil, err
	}
	udl, err := r.byte("user data length")
	if err != nil {
		return nil, err
	}
	if err := m.readUserData(r, int(udl), fo&foUDHI != 0); err != nil {
		return nil, err
	}
	return m, nil
}

// readProtocol skips TP-PID and returns TP-DCS.
func readProtocol(r *reader) (byte, error) {
	if _, err := r.byte("protocol identifier"); err != nil {
		return 0, err
	}
	return r.byte("data coding scheme")
}

// validityLength returns the size of TP-VP selected by the VPF bits.
func validityLength(fo byte) int {
	switch fo >> 3 & 0x03 {
	case 0x02:
		return 1
	case 0x01, 0x03:
		return 7
	default:
		return 0
	}
}

// codingOf resolves the alphabet of a data coding scheme.
func codingOf(dcs byte) (Coding, error) {
	switch {
	case dcs&0x80 == 0x00:
		// general data coding, with or without automatic deletion
		if dcs&0x20 != 0 {
			return 0, ErrUnknownCoding
		}
		switch dcs >> 2 & 0x03 {
		case 0x00:
			return Coding7Bit, nil
		case 0x01:
			return Coding8Bit, nil
		case 0x02:
			return CodingUCS2, nil
		}
	case dcs&0xF0 == 0xC0, dcs&0xF0 == 0xD0:
		return Coding7Bit, nil
	case dcs&0xF0 == 0xE0:
		return CodingUCS2, nil
	case dcs&0xF0 == 0xF0:
		if dcs&0x04 != 0 {
			return Coding8Bit, nil
		}
		return Coding7Bit, nil
	}
	return 0, ErrUnknownCoding
}

func (m *Message) readUserData(r *reader, udl int, hasHeader bool) error {
	if m.Coding != Coding7Bit {
		ud, err := r.next(udl, "user data")
		if err != nil {
			return err
		}
		body := ud
		if hasHeader {
			n, err := m.readHeader(ud)
			if err != nil {
				return err
			}
			body = ud[n:]
		}
		if m.Coding == Coding8Bit {
			m.Data = append([]byte(nil), body...)
			return nil
		}
		text, err := ucs2.Decode(body)
		if err != nil {
			return decodingError("ucs2 user data: %v", err)
		}
		m.Text = string(text)
		return nil
	}

	ud, err := r.next((udl*7+7)/8, "user data")
	if err != nil {
		return err
	}
	septets := unpackSeptets(ud, 0, udl)
	if hasHeader {
		n, err := m.readHeader(ud)
		if err != nil {
			return err
		}
		skip := (n*8 + 6) / 7
		if skip > len(septets) {
			return decodingError("header of %d octets exceeds user data length %d", n, udl)
		}
		septets = septets[skip:]
	}
	m.Text = decodeGSM7(septets)
	return nil
}

// readHeader parses the UDH at the start of ud and returns its size
// including the length octet.
func (m *Message) readHeader(ud []byte) (int, error) {
	if len(ud) == 0 {
		return 0, decodingError("user data header indicated but user data is empty")
	}
	n := int(ud[0]) + 1
	if n > len(ud) {
		return 0, decodingError("header length %d exceeds user data of %d octets", n-1, len(ud)-1)
	}
	concat, err := parseHeader(ud[1:n])
	if err != nil {
		return 0, err
	}
	m.Concat = concat
	return n, nil
}
