package client

import (
	"errors"
	"fmt"
)

// Sentinel categories. Every error returned by Client matches exactly one of them with errors.Is.
var (
	ErrNetwork    = errors.New("network error")
	ErrServer     = errors.New("server error")
	ErrParse      = errors.New("parse error")
	ErrValidation = errors.New("validation error")
)

// NetworkError means the backend could not be reached or the transfer did not complete.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ServerError means the backend answered with a non-success status.
type ServerError struct {
	Op     string
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: server error: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: server error: status %d: %s", e.Op, e.Status, e.Body)
}

func (e *ServerError) Is(target error) bool { return target == ErrServer }

// ParseError means the backend answered with a body that is not the expected JSON.
type ParseError struct {
	Op  string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ValidationError rejects a request before it is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
