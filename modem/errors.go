package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has no transport, for example when the Dialer returned neither a
	// Transport nor an error.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, and by every operation attempted afterwards.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned when Loop is called while another Loop is
	// reading the same transport.
	ErrLoopRunning = errors.New("loop already running")

	// ErrLoopStopped is returned by exchanges that cannot complete because
	// the reader loop has exited. The error that stopped the loop is wrapped
	// alongside it.
	ErrLoopStopped = errors.New("loop stopped")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")

	// ErrTransportTimeout is returned when no terminator line arrives within
	// the AT timeout. The exchange is abandoned; a late response is discarded
	// before the next exchange starts.
	ErrTransportTimeout = errors.New("timed out waiting for modem response")

	// ErrDeviceRejected is returned when the modem terminates an exchange
	// with ERROR (or +CME/+CMS ERROR), or answers a delete with anything
	// other than a lone OK.
	ErrDeviceRejected = errors.New("modem rejected command")

	// ErrMalformedResponse is returned when a response does not have the
	// shape the operation expects, such as a read that yields fewer than
	// three lines or a listing with a header but no PDU.
	ErrMalformedResponse = errors.New("malformed modem response")
)

// DeviceError carries the final result line of a rejected command.
type DeviceError struct {
	Command string
	Line    string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Line)
}

func (e *DeviceError) Unwrap() error {
	return ErrDeviceRejected
}

// SendError reports which part of a message failed. Parts before it were
// accepted by the device and are not recalled.
type SendError struct {
	Part  int // 1-based
	Total int
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send part %d of %d: %v", e.Part, e.Total, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}
