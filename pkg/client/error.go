package client

import (
	"errors"
	"fmt"

	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/interpreter"
)

// ErrorKind identifies the layer a client operation failed in.
type ErrorKind uint8

const (
	// ErrInvalidPsbt indicates a PSBT that failed a local precondition
	// before any command was sent to the device.
	ErrInvalidPsbt ErrorKind = iota + 1

	// ErrTransport indicates the transport failed to deliver a command or
	// to receive its response.
	ErrTransport

	// ErrInterpreter indicates the interpreter failed to answer a request
	// of the device or rejected a value yielded by it.
	ErrInterpreter

	// ErrDevice indicates the device executed a command and returned a
	// status word other than success.
	ErrDevice

	// ErrUnexpectedResult indicates the device reported success with a
	// response the client cannot decode for the command.
	ErrUnexpectedResult

	// ErrUnsupportedAppVersion indicates the application running on the
	// device does not speak the protocol version of the client.
	ErrUnsupportedAppVersion
)

var errorKindStrings = map[ErrorKind]string{
	ErrInvalidPsbt:           "ErrInvalidPsbt",
	ErrTransport:             "ErrTransport",
	ErrInterpreter:           "ErrInterpreter",
	ErrDevice:                "ErrDevice",
	ErrUnexpectedResult:      "ErrUnexpectedResult",
	ErrUnsupportedAppVersion: "ErrUnsupportedAppVersion",
}

// String returns the ErrorKind as a human-readable name.
func (k ErrorKind) String() string {
	if s, ok := errorKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ErrorKind (%d)", uint8(k))
}

// Error satisfies the error interface so that kinds can be used as targets
// of errors.Is.
func (k ErrorKind) Error() string {
	return k.String()
}

// Error is the failure of a client operation. Exactly one kind is set and
// only the payload of that kind is populated. An Error is never modified
// after being built by one of the New*Error functions.
type Error struct {
	kind ErrorKind

	transport   error
	interpreter *interpreter.Error

	command byte
	status  apdu.StatusWord
	data    []byte
}

// NewInvalidPsbtError returns the error reported when a PSBT fails a local
// check.
func NewInvalidPsbtError() *Error {
	return &Error{kind: ErrInvalidPsbt}
}

// NewTransportError wraps the error returned by a transport. The error is
// kept as is and can be recovered with TransportCause or errors.As.
func NewTransportError(err error) *Error {
	return &Error{kind: ErrTransport, transport: err}
}

// NewInterpreterError promotes an interpreter failure into a client error.
// The interpreter error is carried unchanged.
func NewInterpreterError(err *interpreter.Error) *Error {
	return &Error{kind: ErrInterpreter, interpreter: err}
}

// NewDeviceError returns the error reported when the device answers the
// command with the given instruction byte with a non-success status word.
func NewDeviceError(command byte, status apdu.StatusWord) *Error {
	return &Error{kind: ErrDevice, command: command, status: status}
}

// NewUnexpectedResultError returns the error reported when the response to
// the command with the given instruction byte cannot be decoded.
func NewUnexpectedResultError(command byte, data []byte) *Error {
	d := make([]byte, len(data))
	copy(d, data)
	return &Error{kind: ErrUnexpectedResult, command: command, data: d}
}

// NewUnsupportedAppVersionError returns the error reported when the device
// app is not compatible with the client.
func NewUnsupportedAppVersionError() *Error {
	return &Error{kind: ErrUnsupportedAppVersion}
}

func (e *Error) Kind() ErrorKind {
	return e.kind
}

// Command returns the instruction byte of the command in flight when the
// error occurred. It is only set for ErrDevice and ErrUnexpectedResult.
func (e *Error) Command() (byte, bool) {
	if e.kind != ErrDevice && e.kind != ErrUnexpectedResult {
		return 0, false
	}
	return e.command, true
}

// Status returns the status word of an ErrDevice error.
func (e *Error) Status() (apdu.StatusWord, bool) {
	if e.kind != ErrDevice {
		return 0, false
	}
	return e.status, true
}

// Data returns a copy of the undecodable response of an ErrUnexpectedResult
// error.
func (e *Error) Data() ([]byte, bool) {
	if e.kind != ErrUnexpectedResult {
		return nil, false
	}
	d := make([]byte, len(e.data))
	copy(d, e.data)
	return d, true
}

// Transport returns the cause of an ErrTransport error.
func (e *Error) Transport() error {
	return e.transport
}

// Interpreter returns the cause of an ErrInterpreter error.
func (e *Error) Interpreter() *interpreter.Error {
	return e.interpreter
}

// Error satisfies the error interface and prints human-readable errors.
func (e *Error) Error() string {
	switch e.kind {
	case ErrInvalidPsbt:
		return "invalid psbt"
	case ErrTransport:
		return fmt.Sprintf("transport error: %s", e.transport)
	case ErrInterpreter:
		return fmt.Sprintf("interpreter error: %s", e.interpreter)
	case ErrDevice:
		return fmt.Sprintf(
			"device error for command 0x%02x: %s", e.command, e.status,
		)
	case ErrUnexpectedResult:
		return fmt.Sprintf(
			"unexpected result for command 0x%02x: %x", e.command, e.data,
		)
	case ErrUnsupportedAppVersion:
		return "unsupported app version"
	default:
		return e.kind.String()
	}
}

// Unwrap returns the transport or interpreter cause, nil for other kinds.
func (e *Error) Unwrap() error {
	switch e.kind {
	case ErrTransport:
		return e.transport
	case ErrInterpreter:
		if e.interpreter == nil {
			return nil
		}
		return e.interpreter
	default:
		return nil
	}
}

// Is reports whether the target is the kind of the error.
func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.kind
}

// TransportCause returns the error of type T returned by the transport, if
// err is or wraps a transport error.
func TransportCause[T error](err error) (T, bool) {
	var zero T

	var clientErr *Error
	if !errors.As(err, &clientErr) || clientErr.kind != ErrTransport {
		return zero, false
	}

	var cause T
	if errors.As(clientErr.transport, &cause) {
		return cause, true
	}
	return zero, false
}
