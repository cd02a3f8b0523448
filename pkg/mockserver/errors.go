package mockserver

import (
	"errors"
	"fmt"
)

// Sentinel errors for mock server operations.
var (
	// ErrUnexpectedStatus is matched by every *StatusError.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrVerificationFailed is matched by every *VerificationError.
	ErrVerificationFailed = errors.New("verification failed")
)

// StatusError is returned when the mock server answers with a status the
// operation does not expect.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// VerificationError is returned by Verify when the received requests do not
// satisfy the bounds. Message is the mock server's explanation.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	if e.Message == "" {
		return ErrVerificationFailed.Error()
	}
	return ErrVerificationFailed.Error() + ": " + e.Message
}

func (e *VerificationError) Unwrap() error { return ErrVerificationFailed }
