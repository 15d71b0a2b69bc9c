package ml

import (
	"errors"
	"fmt"
)

// ErrServiceUnavailable is the single failure callers see for any completion problem
var ErrServiceUnavailable = errors.New("completion service unavailable")

// TransportError describes why a completion request failed.
// It matches ErrServiceUnavailable with errors.Is.
type TransportError struct {
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", ErrServiceUnavailable, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", ErrServiceUnavailable, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrServiceUnavailable }

func unavailable(status int, format string, args ...any) error {
	return &TransportError{StatusCode: status, Err: fmt.Errorf(format, args...)}
}
