package expectation

import "fmt"

// DecodeError is returned when a wire document is malformed or violates the
// schema: a missing or unknown discriminator, an invalid method, URI, media
// type or status code.
type DecodeError struct {
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

// EncodeError is returned when a value cannot be written to the wire format.
// With the closed variants of this package it only fires for values built
// outside the provided constructors.
type EncodeError struct {
	Msg string
	Err error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ValidationError reports a violated input constraint.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
