// Package buserr defines the error taxonomy raised by the registry and its
// external request layer: a small set of error codes plus typed wrappers
// that implement the error interface, in the style of a protocol core's
// error package rather than bare sentinel values.
package buserr

import "fmt"

// Code identifies the kind of failure, independent of the message text.
type Code int

// Error codes. Values are not part of any wire format; only the Go
// identifiers are part of the package's contract.
const (
	CodeOK Code = iota
	CodeInvalidName
	CodeTooManyNames
	CodeNameNotFound
	CodeNameExists
	CodeAlready
	CodePermissionDenied
	CodeNoConn
	CodeNoMem
	CodeQueueFull
)

// String returns a human-readable name for the code.
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidName:
		return "InvalidName"
	case CodeTooManyNames:
		return "TooManyNames"
	case CodeNameNotFound:
		return "NameNotFound"
	case CodeNameExists:
		return "NameExists"
	case CodeAlready:
		return "Already"
	case CodePermissionDenied:
		return "PermissionDenied"
	case CodeNoConn:
		return "NoConn"
	case CodeNoMem:
		return "NoMem"
	case CodeQueueFull:
		return "QueueFull"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// Error is the base error type for everything this package raises.
type Error struct {
	Code    Code
	Message string
	Wrapped error
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is lets errors.Is match on Code: errors.Is(err, buserr.ErrNameExists)
// compares the Code field, not pointer identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Invalid name errors.

// InvalidNameError reports a name that failed validation.
type InvalidNameError struct{ *Error }

func NewInvalidNameError(name string) *InvalidNameError {
	return &InvalidNameError{newErr(CodeInvalidName, "invalid name %q", name)}
}

// TooManyNamesError reports that a connection has hit its owned-name quota.
type TooManyNamesError struct{ *Error }

func NewTooManyNamesError(connID uint64, limit int) *TooManyNamesError {
	return &TooManyNamesError{newErr(CodeTooManyNames, "connection %d owns %d names already", connID, limit)}
}

// NameNotFoundError reports release/lookup on an absent name.
type NameNotFoundError struct{ *Error }

func NewNameNotFoundError(name string) *NameNotFoundError {
	return &NameNotFoundError{newErr(CodeNameNotFound, "name %q not found", name)}
}

// NameExistsError reports an acquire conflict with no takeover or queue
// resolution available.
type NameExistsError struct{ *Error }

func NewNameExistsError(name string) *NameExistsError {
	return &NameExistsError{newErr(CodeNameExists, "name %q already owned", name)}
}

// AlreadyError reports an idempotent re-acquire by the current owner. It is
// not a failure: callers should treat it the same as CodeOK but may inspect
// it to know no new ADD event was emitted.
type AlreadyError struct{ *Error }

func NewAlreadyError(name string) *AlreadyError {
	return &AlreadyError{newErr(CodeAlready, "name %q already owned by requester", name)}
}

// PermissionDeniedError reports a policy refusal or a release attempted by
// a connection with no standing over the name.
type PermissionDeniedError struct{ *Error }

func NewPermissionDeniedError(format string, args ...interface{}) *PermissionDeniedError {
	return &PermissionDeniedError{newErr(CodePermissionDenied, format, args...)}
}

// NoConnError reports that a privileged "act on behalf of" target id could
// not be resolved to a live connection.
type NoConnError struct{ *Error }

func NewNoConnError(id uint64) *NoConnError {
	return &NoConnError{newErr(CodeNoConn, "connection %d not found", id)}
}

// NoMemError reports an allocation failure in the registry or a sub-step
// (such as message migration during takeover).
type NoMemError struct{ *Error }

func NewNoMemError(reason string) *NoMemError {
	return &NoMemError{newErr(CodeNoMem, "allocation failed: %s", reason)}
}

// QueueFullError reports that a name's waiter queue is already at the
// registry's configured depth limit.
type QueueFullError struct{ *Error }

func NewQueueFullError(name string, limit int) *QueueFullError {
	return &QueueFullError{newErr(CodeQueueFull, "queue for %q already holds %d waiters", name, limit)}
}

// Sentinel instances for errors.Is comparisons that only care about Code.
var (
	ErrInvalidName      = &Error{Code: CodeInvalidName}
	ErrTooManyNames     = &Error{Code: CodeTooManyNames}
	ErrNameNotFound     = &Error{Code: CodeNameNotFound}
	ErrNameExists       = &Error{Code: CodeNameExists}
	ErrAlready          = &Error{Code: CodeAlready}
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrNoConn           = &Error{Code: CodeNoConn}
	ErrNoMem            = &Error{Code: CodeNoMem}
	ErrQueueFull        = &Error{Code: CodeQueueFull}
)

// CodeOf extracts the Code from any error raised by this package. It
// returns (CodeOK, true) for a nil err and (0, false) for an error that is
// not one of this package's types.
func CodeOf(err error) (Code, bool) {
	if err == nil {
		return CodeOK, true
	}
	if e, ok := err.(interface{ Unwrap() error }); ok {
		if be, ok := unwrapToBase(e); ok {
			return be.Code, true
		}
	}
	if be, ok := err.(*Error); ok {
		return be.Code, true
	}
	return 0, false
}

func unwrapToBase(err interface{ Unwrap() error }) (*Error, bool) {
	switch v := err.(type) {
	case *InvalidNameError:
		return v.Error, true
	case *TooManyNamesError:
		return v.Error, true
	case *NameNotFoundError:
		return v.Error, true
	case *NameExistsError:
		return v.Error, true
	case *AlreadyError:
		return v.Error, true
	case *PermissionDeniedError:
		return v.Error, true
	case *NoConnError:
		return v.Error, true
	case *NoMemError:
		return v.Error, true
	case *QueueFullError:
		return v.Error, true
	}
	return nil, false
}
