// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-bridge.

package api

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-bridge/core/concurrency"
)

// Common errors used across the library.
var (
	// ErrUnknownHandle is returned for tokens that were never issued, were
	// retired by a stop/close, or refer to an object of another kind.
	ErrUnknownHandle = errors.New("unknown handle")

	// ErrInvalidBindSpec rejects malformed bind specifications before any
	// work reaches the loop.
	ErrInvalidBindSpec = errors.New("invalid bind spec")

	// ErrBindFailed reports that the loop could not bind or listen.
	ErrBindFailed = errors.New("bind failed")

	// ErrLoopNotRunning is returned by operations that need a live loop.
	ErrLoopNotRunning = errors.New("event loop not running")

	// ErrQueueClosed accompanies ErrLoopNotRunning when a command reached a
	// loop that had already shut its queue.
	ErrQueueClosed = concurrency.ErrQueueClosed

	// ErrConnectionClosed is reported on the loop when a write targets a
	// connection that has already gone away.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNilApplication rejects server creation without callbacks.
	ErrNilApplication = errors.New("nil application")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeAddressInUse
	ErrCodeBind
	ErrCodeNotFound
	ErrCodeInternal
)

// String returns a short name for the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeAddressInUse:
		return "address_in_use"
	case ErrCodeBind:
		return "bind"
	case ErrCodeNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Wrap attaches a cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}
