// Package ghosterr defines the error kinds shared across the editing core.
//
// Errors from the editing core carry one of these kinds in an *Error built
// by New, wrapping the underlying cause, so callers can classify failures
// with Is (which unwraps via errors.As) without parsing message text.
package ghosterr

import "errors"

// Kind classifies an error for the purposes of user-visible status and
// protocol error codes (spec section 7).
type Kind int

const (
	// KindFileIO covers buffer/WAL/save failures that originate from the
	// filesystem.
	KindFileIO Kind = iota
	// KindInvalidUTF8 is not user-facing as an error; it triggers hex mode.
	KindInvalidUTF8
	// KindProtocol covers malformed envelopes, unexpected message types,
	// and version mismatches.
	KindProtocol
	// KindAuth covers a rejected or missing Auth secret.
	KindAuth
	// KindBusy covers a connection attempt while another client is active.
	KindBusy
	// KindRateLimit covers a connection attempt rejected by the acceptor's
	// rolling window.
	KindRateLimit
	// KindTimeout covers heartbeat and request timeouts.
	KindTimeout
	// KindCancelled covers operations aborted by context cancellation or
	// channel closure.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindFileIO:
		return "FileIo"
	case KindInvalidUTF8:
		return "InvalidUtf8"
	case KindProtocol:
		return "Protocol"
	case KindAuth:
		return "Auth"
	case KindBusy:
		return "Busy"
	case KindRateLimit:
		return "RateLimit"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error pairs a Kind with an underlying cause. It implements Unwrap so
// errors.Is/As see through it to the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind wrapping err (which may be nil).
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}
