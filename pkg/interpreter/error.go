package interpreter

import "fmt"

// ErrorKind identifies a kind of interpreter failure.
type ErrorKind string

const (
	// ErrEmptyRequest is returned when the device interrupts a command
	// without telling which client command it wants executed.
	ErrEmptyRequest = ErrorKind("ErrEmptyRequest")

	// ErrUnknownCommand is returned for client command codes the
	// interpreter does not implement.
	ErrUnknownCommand = ErrorKind("ErrUnknownCommand")

	// ErrUnexpectedCommand is returned when the device issues a new client
	// command while elements of a previous response are still queued.
	ErrUnexpectedCommand = ErrorKind("ErrUnexpectedCommand")

	// ErrMalformedRequest is returned when the request payload does not
	// match the layout of its client command.
	ErrMalformedRequest = ErrorKind("ErrMalformedRequest")

	// ErrUnknownPreimage is returned when the device asks for the preimage
	// of a hash the client never committed to.
	ErrUnknownPreimage = ErrorKind("ErrUnknownPreimage")

	// ErrUnknownMerkleRoot is returned when the device refers to a merkle
	// tree the client never committed to.
	ErrUnknownMerkleRoot = ErrorKind("ErrUnknownMerkleRoot")

	// ErrLeafIndexOutOfRange is returned when a merkle proof is requested
	// for a leaf that is not in the tree.
	ErrLeafIndexOutOfRange = ErrorKind("ErrLeafIndexOutOfRange")

	// ErrEmptyQueue is returned when the device asks for more elements but
	// none are queued.
	ErrEmptyQueue = ErrorKind("ErrEmptyQueue")

	// ErrInconsistentQueue is returned when the queued elements do not all
	// have the same length and thus cannot be sent in one response.
	ErrInconsistentQueue = ErrorKind("ErrInconsistentQueue")

	// ErrPolicyViolation is returned when a value yielded by the device is
	// rejected by the yield policy of the interpreter.
	ErrPolicyViolation = ErrorKind("ErrPolicyViolation")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// Error is the failure of the interpreter while executing a client command.
//
// It has full support for errors.Is and errors.As: the chain of an Error
// contains both its kind and, if any, the cause reported by a yield policy.
type Error struct {
	Kind        ErrorKind
	Command     ClientCommand
	Description string
	Cause       error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Command, e.Description, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Description)
}

// Unwrap returns the kind of the error followed by its cause, if any.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func makeError(
	kind ErrorKind, cmd ClientCommand, format string, a ...interface{},
) *Error {
	return &Error{
		Kind:        kind,
		Command:     cmd,
		Description: fmt.Sprintf(format, a...),
	}
}
