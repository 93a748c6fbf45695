package pdu

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding is returned when a message cannot be represented in the
	// PDU format, for example a destination number that contains characters
	// which cannot be dialled.
	ErrEncoding = errors.New("pdu: encoding error")

	// ErrDecoding is returned when a PDU is structurally malformed: invalid
	// hex, a length field pointing past the end of the record or a truncated
	// user data header.
	ErrDecoding = errors.New("pdu: decoding error")

	// ErrUnknownCoding is returned by Decode when the data coding scheme
	// selects an alphabet this package does not implement (compressed text
	// or reserved values).
	//
	// It wraps ErrDecoding so callers checking for the broader kind still
	// match.
	ErrUnknownCoding = fmt.Errorf("%w: unsupported data coding scheme", ErrDecoding)
)

func encodingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEncoding, fmt.Sprintf(format, args...))
}

func decodingError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecoding, fmt.Sprintf(format, args...))
}
