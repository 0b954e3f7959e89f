// Package util provides logging helpers and common error types.
package util

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the translation engine and its collaborators
var (
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal error")
	ErrTransport   = errors.New("kernel transport failure")
	ErrInvalidPath = errors.New("invalid instance path")
	ErrDecode      = errors.New("malformed kernel message")
)

// InternalError is the engine-boundary form of a transport or decode failure.
// It matches both ErrInternal and the underlying cause with errors.Is.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("internal error during %s", e.Op)
	}
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInternal}
	}
	return []error{ErrInternal, e.Err}
}

// NewInternalError wraps err as an internal error for operation op
func NewInternalError(op string, err error) *InternalError {
	return &InternalError{Op: op, Err: err}
}

// NotFoundError represents a missing schema module, container, or kernel object
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{Kind: kind, Name: name}
}
