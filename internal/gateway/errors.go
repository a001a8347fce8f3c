package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a client-side failure.
type Kind int

const (
	// KindNetwork is a transport or connectivity failure; always recoverable.
	KindNetwork Kind = iota
	// KindProtocol is a malformed server payload.
	KindProtocol
	// KindAuth is an authentication failure declared by the server or an
	// invalid local auth state transition.
	KindAuth
	// KindValidation is bad input rejected before any network call.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is the normalized failure returned by the gateway and the services
// built on it. Transport faults never escape as raw errors.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a normalized Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err if it is a gateway Error, or KindNetwork
// as a conservative default for unclassified failures.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindNetwork
}

// IsKind reports whether err is a gateway Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == kind
}
