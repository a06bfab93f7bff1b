package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a remote failure.
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindRejected    Kind = "rejected"
	KindNotFound    Kind = "not_found"
	KindProtocol    Kind = "protocol"
)

// Sentinel errors, one per Kind. A *RemoteError matches the sentinel of its
// kind with errors.Is.
var (
	// ErrUnavailable indicates the remote could not be reached.
	ErrUnavailable = errors.New("remote unavailable")

	// ErrTimeout indicates a call did not finish within its deadline.
	ErrTimeout = errors.New("remote call timed out")

	// ErrRejected indicates the remote refused the operation.
	ErrRejected = errors.New("remote rejected operation")

	// ErrNotFound indicates the remote does not know the addressed entity.
	ErrNotFound = errors.New("remote entity not found")

	// ErrProtocol indicates a malformed or unexpected response.
	ErrProtocol = errors.New("remote protocol error")
)

// RemoteError is returned by every Gateway implementation.
type RemoteError struct {
	Op      string
	Kind    Kind
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		return fmt.Sprintf("remote %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("remote %s: %s: %s", e.Op, e.Kind, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrRejected:
		return e.Kind == KindRejected
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrProtocol:
		return e.Kind == KindProtocol
	}
	return false
}

// Errorf builds a *RemoteError with a formatted message.
func Errorf(op string, kind Kind, format string, args ...any) *RemoteError {
	return &RemoteError{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a *RemoteError around err.
func Wrap(op string, kind Kind, err error) *RemoteError {
	return &RemoteError{Op: op, Kind: kind, Err: err}
}

// KindOf returns the kind of a remote error. Bare sentinels map to their
// kind, a context deadline to KindTimeout, anything else to
// KindUnavailable.
func KindOf(err error) Kind {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind
	}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrRejected):
		return KindRejected
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	}
	return KindUnavailable
}

// ParseKind maps a wire kind back to a Kind. Unknown kinds are protocol
// errors.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindUnavailable, KindTimeout, KindRejected, KindNotFound, KindProtocol:
		return k
	}
	return KindProtocol
}

// IsRetryable reports whether the failure is transient: the same call may
// succeed later without any change to the request.
//
// Example:
//
//	if gateway.IsRetryable(err) {
//	    // leave the request pending, try next cycle
//	}
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProtocol)
}

// IsRejection reports whether the remote definitively refused the call.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected) || errors.Is(err, ErrNotFound)
}

// classify turns a transport error into a *RemoteError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return Wrap(op, KindOf(err), err)
}
