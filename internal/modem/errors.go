package modem

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a command got no terminal line in time.
	ErrTimeout = errors.New("modem: timeout")

	// ErrHardwareNotReady is returned when the transport cannot be opened or
	// the modem does not answer the startup handshake.
	ErrHardwareNotReady = errors.New("modem: hardware not ready")

	// ErrMalformedResponse is returned when a response does not have the
	// expected fields.
	ErrMalformedResponse = errors.New("modem: malformed response")

	// ErrNoSocket is returned by OpenSocket when the socket table is full.
	ErrNoSocket = errors.New("modem: no free socket")

	// ErrInvalidSocket is returned for ids outside the table or not open.
	ErrInvalidSocket = errors.New("modem: invalid socket")

	// ErrSocketClosed is returned when closing a socket that is already closed.
	ErrSocketClosed = errors.New("modem: socket already closed")

	// ErrConnectionClosed is returned once the peer closed the connection.
	ErrConnectionClosed = errors.New("modem: connection closed")

	// ErrConnectFailed is returned when the modem reports a failed open.
	ErrConnectFailed = errors.New("modem: connection failed")

	// ErrNoPrompt is returned when the modem did not switch to prompt or
	// data mode in time.
	ErrNoPrompt = errors.New("modem: no prompt from modem")

	// ErrNotRegistered is returned by Attach when the modem never registered.
	ErrNotRegistered = errors.New("modem: not registered")

	// ErrUnsupported is returned for operations the modem cannot do.
	ErrUnsupported = errors.New("modem: not supported")

	// ErrClosed is returned once the driver has been closed.
	ErrClosed = errors.New("modem: driver closed")
)

// ProtocolError carries an ERROR or +CME ERROR answer. Message is empty for a
// bare ERROR.
type ProtocolError struct {
	Command string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("modem: %s: ERROR", e.Command)
	}
	return fmt.Sprintf("modem: %s: %s", e.Command, e.Message)
}

// Class is the coarse error classification reported to bindings.
type Class int

const (
	ClassOK Class = iota
	ClassTimeout
	ClassProtocol
	ClassMalformed
	ClassHardwareNotReady
	ClassResourceExhausted
	ClassClosed
	ClassOther
)

var classNames = [...]string{"ok", "timeout", "protocol", "malformed", "hardware_not_ready", "resource_exhausted", "closed", "error"}

func (c Class) String() string { return classNames[c] }

// Classify maps err onto the binding error taxonomy.
func Classify(err error) Class {
	var perr *ProtocolError
	switch {
	case err == nil:
		return ClassOK
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrNoPrompt), errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.As(err, &perr), errors.Is(err, ErrConnectFailed):
		return ClassProtocol
	case errors.Is(err, ErrMalformedResponse):
		return ClassMalformed
	case errors.Is(err, ErrHardwareNotReady):
		return ClassHardwareNotReady
	case errors.Is(err, ErrNoSocket):
		return ClassResourceExhausted
	case errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrSocketClosed), errors.Is(err, ErrClosed):
		return ClassClosed
	}
	return ClassOther
}
