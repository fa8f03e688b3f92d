package railgun

import (
	"errors"
	"fmt"
)

// TransportError is returned when a request could not be sent or its
// response could not be received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("railgun %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectionError is returned for a non-2xx response.
type RejectionError struct {
	Op     string
	Status int
	Body   string
}

func (e *RejectionError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("railgun %s: rejected with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("railgun %s: rejected with status %d: %s", e.Op, e.Status, e.Body)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsRejection reports whether err is (or wraps) a RejectionError.
func IsRejection(err error) bool {
	var re *RejectionError
	return errors.As(err, &re)
}
