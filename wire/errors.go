package wire

import (
	"errors"
	"fmt"
)

// Status classifies the outcome of a transport level operation.
type Status int

const (
	StatusOK Status = iota
	// StatusTimeout: the readiness line never asserted within the deadline.
	StatusTimeout
	// StatusOverflow: readiness was still asserted after the receive
	// buffer was full, so the response did not fit.
	StatusOverflow
	// StatusHandshakeMismatch: the banner or a response did not match
	// what the protocol step expected.
	StatusHandshakeMismatch
	// StatusProtocolError: a response carried an error marker or lacked
	// an expected delimiter.
	StatusProtocolError
	// StatusBusError: the underlying bus or a GPIO line failed.
	StatusBusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusOverflow:
		return "overflow"
	case StatusHandshakeMismatch:
		return "handshake mismatch"
	case StatusProtocolError:
		return "protocol error"
	case StatusBusError:
		return "bus error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

var (
	ErrTimeout           = errors.New("readiness timeout")
	ErrOverflow          = errors.New("receive buffer overflow")
	ErrHandshakeMismatch = errors.New("handshake mismatch")
	ErrProtocol          = errors.New("protocol error")
	ErrBus               = errors.New("bus error")

	// ErrUnaligned is returned when a raw transfer is not a whole number
	// of words. The codec pads everything before it reaches the transport,
	// so seeing this means a caller skipped it.
	ErrUnaligned = errors.New("transfer length is not word aligned")
)

var statusErrors = map[Status]error{
	StatusTimeout:           ErrTimeout,
	StatusOverflow:          ErrOverflow,
	StatusHandshakeMismatch: ErrHandshakeMismatch,
	StatusProtocolError:     ErrProtocol,
	StatusBusError:          ErrBus,
}

// Error is a transport failure carrying its Status. It matches the
// sentinel of its status with errors.Is.
type Error struct {
	Op     string
	Status Status
	Err    error
}

// NewError builds an Error for op. err may be nil.
func NewError(op string, status Status, err error) *Error {
	return &Error{Op: op, Status: status, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Status, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return statusErrors[e.Status] == target
}

// StatusOf reports the Status carried by err. A nil error is StatusOK.
// Errors that neither carry a Status nor wrap a sentinel of this package
// report StatusProtocolError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Status
	}
	for s, sentinel := range statusErrors {
		if errors.Is(err, sentinel) {
			return s
		}
	}
	return StatusProtocolError
}
