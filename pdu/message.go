package pdu

import (
	"time"
)

// Type is the TP-MTI message type carried in the low bits of the first
// octet.
type Type byte

const (
	TypeDeliver      Type = 0x00
	TypeSubmit       Type = 0x01
	TypeStatusReport Type = 0x02
)

func (t Type) String() string {
	switch t {
	case TypeDeliver:
		return "deliver"
	case TypeSubmit:
		return "submit"
	case TypeStatusReport:
		return "status-report"
	default:
		return "reserved"
	}
}

// Coding is the alphabet selected by the data coding scheme.
type Coding int

const (
	Coding7Bit Coding = iota
	Coding8Bit
	CodingUCS2
)

func (c Coding) String() string {
	switch c {
	case Coding7Bit:
		return "gsm7"
	case Coding8Bit:
		return "8bit"
	case CodingUCS2:
		return "ucs2"
	default:
		return "unknown"
	}
}

// Concat describes one part of a concatenated message. Sequence is 1-based.
type Concat struct {
	Reference int `json:"reference"`
	Count     int `json:"count"`
	Sequence  int `json:"sequence"`
}

// CodedMessage is one encoded PDU ready for AT+CMGS. Length is the octet
// count of PduCode excluding the service centre address prefix.
type CodedMessage struct {
	PduCode string `json:"pdu"`
	Length  int    `json:"length"`
}

// Message is a decoded PDU.
type Message struct {
	Type          Type   `json:"-"`
	ServiceCenter string `json:"smsc,omitempty"`
	// Number is the originating address of a DELIVER or the destination
	// address of a SUBMIT.
	Number string `json:"number"`
	// Time is the service centre timestamp. It is zero for SUBMIT.
	Time   time.Time `json:"time,omitzero"`
	Text   string    `json:"text"`
	Coding Coding    `json:"-"`
	// Data holds the raw user data of an 8-bit message, which has no text
	// representation.
	Data   []byte  `json:"data,omitempty"`
	Concat *Concat `json:"concat,omitempty"`
}
