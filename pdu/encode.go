package pdu

import (
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/warthog618/sms/encoding/ucs2"
)

// Data coding schemes written by the encoder.
const (
	dcsGSM7 byte = 0x00
	dcsUCS2 byte = 0x08
)

// First octet flags of a SUBMIT.
const (
	foSubmit          byte = 0x01
	foRejectDuplicate byte = 0x04
	foVPFRelative     byte = 0x10
	foUDHI            byte = 0x40
)

// User data capacities per part.
const (
	maxOctets        = 140
	maxSeptets       = 160
	concatHeaderLen  = 6
	// text septets per concatenated part: 153 less the 7 header septets
	maxConcatSeptets = 153 - (concatHeaderLen*8+6)/7
	maxConcatOctets  = maxOctets - concatHeaderLen
	maxParts         = 255
)

type Option func(*Encoder)

// WithValidityPeriod asks the service centre to discard the message if it
// cannot be delivered within d. It is written as a relative validity period
// and rounded up to the next representable value.
func WithValidityPeriod(d time.Duration) Option {
	return func(e *Encoder) {
		e.validity = relativeValidity(d)
		e.hasValidity = true
	}
}

// WithRejectDuplicates sets TP-RD so the service centre drops a SUBMIT with
// the same reference and destination as one it still holds.
func WithRejectDuplicates() Option {
	return func(e *Encoder) {
		e.rejectDuplicates = true
	}
}

// Encoder builds SUBMIT PDUs. The zero value is not usable, create one with
// NewEncoder. An Encoder is safe for concurrent use.
type Encoder struct {
	validity         byte
	hasValidity      bool
	rejectDuplicates bool

	// concatenation reference, advanced once per multi-part message
	ref atomic.Uint32
}

func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEncoder = NewEncoder()

// Encode is Encoder.Encode on a package level encoder.
func Encode(number, text, smsc string) ([]CodedMessage, error) {
	return defaultEncoder.Encode(number, text, smsc)
}

// Encode converts text to one or more SUBMIT PDUs addressed to number, in
// transmission order. Text that fits the GSM 7-bit alphabet (including the
// extension table) is packed as septets, anything else is sent as UCS2.
// Messages longer than one part are split and each part carries a
// concatenation header sharing one reference number. An empty smsc
// leaves the choice of SMSC to the device.
func (e *Encoder) Encode(number, text, smsc string) ([]CodedMessage, error) {
	dest, err := parseNumber(number)
	if err != nil {
		return nil, err
	}
	sca, err := serviceCenter(smsc)
	if err != nil {
		return nil, err
	}

	runes := []rune(text)
	var parts []userData
	if chars, ok := encodeGSM7(runes); ok {
		parts = splitGSM7(chars)
	} else {
		parts = splitUCS2(runes)
	}
	if len(parts) > maxParts {
		return nil, encodingError("text needs %d parts, at most %d are addressable", len(parts), maxParts)
	}

	var ref int
	if len(parts) > 1 {
		ref = int(e.ref.Add(1) % 256)
	}

	out := make([]CodedMessage, 0, len(parts))
	for i, ud := range parts {
		if len(parts) > 1 {
			ud = ud.withHeader(concatHeader(ref, len(parts), i+1))
		}
		out = append(out, e.submit(sca, dest, ud))
	}
	return out, nil
}

func (e *Encoder) submit(sca []byte, dest address, ud userData) CodedMessage {
	fo := foSubmit
	if ud.header != nil {
		fo |= foUDHI
	}
	if e.hasValidity {
		fo |= foVPFRelative
	}
	if e.rejectDuplicates {
		fo |= foRejectDuplicate
	}

	b := make([]byte, 0, len(sca)+16+maxOctets)
	b = append(b, sca...)
	b = append(b, fo, 0x00) // TP-MR, assigned by the device
	b = append(b, dest.destination()...)
	b = append(b, 0x00, ud.dcs) // TP-PID, TP-DCS
	if e.hasValidity {
		b = append(b, e.validity)
	}
	udl, payload := ud.marshal()
	b = append(b, byte(udl))
	b = append(b, payload...)

	return CodedMessage{
		PduCode: strings.ToUpper(hex.EncodeToString(b)),
		Length:  len(b) - len(sca),
	}
}

// userData is the body of one part before the optional header is attached.
type userData struct {
	dcs     byte
	septets []byte // GSM 7-bit body
	octets  []byte // UCS2 body
	header  []byte
}

func (u userData) withHeader(h []byte) userData {
	u.header = h
	return u
}

// marshal returns TP-UDL and TP-UD. In 7-bit mode UDL counts septets, the
// header included, and the body starts on the first septet boundary after
// the header.
func (u userData) marshal() (int, []byte) {
	if u.dcs == dcsUCS2 {
		ud := append(append([]byte{}, u.header...), u.octets...)
		return len(ud), ud
	}
	if len(u.header) == 0 {
		return len(u.septets), packSeptets(u.septets, 0)
	}
	headerBits := len(u.header) * 8
	headerSeptets := (headerBits + 6) / 7
	fill := headerSeptets*7 - headerBits
	ud := append(append([]byte{}, u.header...), packSeptets(u.septets, fill)...)
	return headerSeptets + len(u.septets), ud
}

// splitGSM7 groups characters into parts without separating an escape
// sequence from the septet it escapes.
func splitGSM7(chars [][]byte) []userData {
	total := 0
	for _, c := range chars {
		total += len(c)
	}
	if total <= maxSeptets {
		body := make([]byte, 0, total)
		for _, c := range chars {
			body = append(body, c...)
		}
		return []userData{{dcs: dcsGSM7, septets: body}}
	}

	var parts []userData
	body := make([]byte, 0, maxConcatSeptets)
	for _, c := range chars {
		if len(body)+len(c) > maxConcatSeptets {
			parts = append(parts, userData{dcs: dcsGSM7, septets: body})
			body = make([]byte, 0, maxConcatSeptets)
		}
		body = append(body, c...)
	}
	return append(parts, userData{dcs: dcsGSM7, septets: body})
}

// splitUCS2 groups runes into parts without separating a surrogate pair.
func splitUCS2(runes []rune) []userData {
	all := ucs2.Encode(runes)
	if len(all) <= maxOctets {
		return []userData{{dcs: dcsUCS2, octets: all}}
	}

	var parts []userData
	body := make([]byte, 0, maxConcatOctets)
	for _, r := range runes {
		u := ucs2.Encode([]rune{r})
		if len(body)+len(u) > maxConcatOctets {
			parts = append(parts, userData{dcs: dcsUCS2, octets: body})
			body = make([]byte, 0, maxConcatOctets)
		}
		body = append(body, u...)
	}
	return append(parts, userData{dcs: dcsUCS2, octets: body})
}

// relativeValidity maps d onto the TP-VP relative format: 5 minute steps up
// to 12 hours, 30 minute steps up to 24 hours, days up to 30 days, then
// weeks up to 63 weeks.
func relativeValidity(d time.Duration) byte {
	minutes := int((d + time.Minute - 1) / time.Minute)
	switch {
	case minutes <= 5:
		return 0
	case minutes <= 12*60:
		return byte((minutes+4)/5 - 1)
	case minutes <= 24*60:
		return byte(143 + (minutes-12*60+29)/30)
	}
	days := (minutes + 24*60 - 1) / (24 * 60)
	if days <= 30 {
		return byte(166 + days)
	}
	weeks := (days + 6) / 7
	if weeks > 63 {
		weeks = 63
	}
	return byte(192 + weeks)
}
