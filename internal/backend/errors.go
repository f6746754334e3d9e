package backend

import (
	"fmt"
)

// TransportError means no interpretable response was received:
// connection refused, timeout, cancelled context, truncated body.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseError means the backend answered but did not deliver a result.
// Logical is set when the body was a well-formed envelope with success=false.
// Message holds the backend's own error text, if it sent one.
type ResponseError struct {
	StatusCode int
	Logical    bool
	Message    string
}

func (e *ResponseError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d without an error message", e.StatusCode)
}

// DecodeError means a success status came back with a body of the wrong shape
type DecodeError struct {
	StatusCode int
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed backend response (%d): %v", e.StatusCode, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
