package client

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindProtocol
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every backend operation that fails.
//
// Transport covers network failures and non-2xx responses (Status is set for
// the latter). Protocol carries the first GraphQL error message verbatim.
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindProtocol:
		return e.Message
	case e.Status != 0:
		return fmt.Sprintf("%s: server error (%d)", e.Op, e.Status)
	case e.Kind == KindTimeout:
		return fmt.Sprintf("%s: request timed out", e.Op)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of a client error, if err is one.
func KindOf(err error) (ErrorKind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// ErrUpdateRejected means the backend answered a field update with anything
// other than "Success".
var ErrUpdateRejected = errors.New("update rejected by backend")

// ErrResolveFailed means resolveAction reported failure in its result string.
var ErrResolveFailed = errors.New("action resolution failed")

type ResultError struct {
	Op     string
	Result string
	err    error
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("%s: %s (backend said %q)", e.Op, e.err, e.Result)
}

func (e *ResultError) Unwrap() error { return e.err }
