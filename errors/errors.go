// Package errors provides custom error types for the cart sync packages
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeNetworkFailure    ErrorCode = "NETWORK_FAILURE"
	ErrCodeRemoteRejected    ErrorCode = "REMOTE_REJECTED"
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
)

// Operation represents the cart operation during which an error happened
type Operation string

const (
	OpReload         Operation = "reload"
	OpAdd            Operation = "add"
	OpUpdateQuantity Operation = "update_quantity"
	OpRemove         Operation = "remove"
	OpClear          Operation = "clear"
	OpMerge          Operation = "merge"
	OpFetch          Operation = "fetch"
	OpCreateLine     Operation = "create_line"
	OpUpdateLine     Operation = "update_line"
	OpDeleteLine     Operation = "delete_line"
	OpClearLines     Operation = "clear_lines"
	OpGuestToken     Operation = "guest_token"
	OpCredential     Operation = "credential"
	OpConfig         Operation = "config"
)

// Kind classifies an error for logging and metrics. It never changes how
// the engine recovers from a failure.
type Kind string

const (
	KindOther     Kind = ""
	KindTransport Kind = "transport"
	KindRemote    Kind = "remote"
	KindDecode    Kind = "decode"
	KindStorage   Kind = "storage"
	KindInvalid   Kind = "invalid"
	KindAuth      Kind = "auth"
	KindClosed    Kind = "closed"
)

// Component names the package that produced the error
type Component string

// CartError represents an error that occurred while keeping the cart in sync
type CartError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "transport/http", "storage/sqlite")
	Component string

	// Kind of failure
	Kind Kind

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *CartError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	if e.Err == nil {
		return msg
	}
	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *CartError) Unwrap() error {
	return e.Err
}

// E builds a CartError from its arguments. Accepted argument types are
// Operation, Component, Kind, ErrorCode, error, string (appended to the
// message of the wrapped error) and map[string]interface{} (metadata).
func E(args ...interface{}) error {
	e := &CartError{}
	var inner *CartError
	var notes []string
	for _, arg := range args {
		switch a := arg.(type) {
		case Operation:
			e.Op = a
		case Component:
			e.Component = string(a)
		case Kind:
			e.Kind = a
		case ErrorCode:
			e.Code = a
		case *CartError:
			inner = a
			e.Err = a
		case error:
			e.Err = a
		case string:
			notes = append(notes, a)
		case map[string]interface{}:
			e.Metadata = a
		}
	}
	if len(notes) > 0 {
		note := strings.Join(notes, ": ")
		if e.Err == nil {
			e.Err = errors.New(note)
		} else {
			e.Err = fmt.Errorf("%s: %w", note, e.Err)
		}
	}
	// Kind, Code and Retryable carry over from a wrapped CartError
	// unless set here.
	if inner != nil {
		if e.Kind == KindOther {
			e.Kind = inner.Kind
		}
		if e.Code == "" {
			e.Code = inner.Code
		}
		e.Retryable = inner.Retryable
	}
	if e.Kind == KindTransport {
		e.Retryable = true
	}
	return e
}

// Op is a conversion helper used with E.
func Op(s string) Operation { return Operation(s) }

// NewNetworkError creates a new network-related CartError
func NewNetworkError(op Operation, cause error) *CartError {
	return &CartError{
		Code:      ErrCodeNetworkFailure,
		Op:        op,
		Component: "transport",
		Kind:      KindTransport,
		Err:       cause,
		Retryable: true,
	}
}

// NewRemoteError creates a CartError for a request the remote cart store rejected
func NewRemoteError(op Operation, cause error) *CartError {
	return &CartError{
		Code:      ErrCodeRemoteRejected,
		Op:        op,
		Component: "transport",
		Kind:      KindRemote,
		Err:       cause,
	}
}

// NewStorageError creates a new storage-related CartError
func NewStorageError(op Operation, cause error) *CartError {
	return &CartError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Kind:      KindStorage,
		Err:       cause,
		Retryable: true,
	}
}

// NewValidationError creates a new validation-related CartError
func NewValidationError(op Operation, cause error) *CartError {
	return &CartError{
		Code: ErrCodeValidationFailure,
		Op:   op,
		Kind: KindInvalid,
		Err:  cause,
	}
}

// New creates a new CartError
func New(op Operation, err error) *CartError {
	return &CartError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new CartError with component information
func NewWithComponent(op Operation, component string, err error) *CartError {
	return &CartError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// IsRetryable checks if an error is a retryable CartError
func IsRetryable(err error) bool {
	var cartErr *CartError
	if errors.As(err, &cartErr) {
		return cartErr.Retryable
	}
	return false
}

// KindOf returns the Kind of the outermost CartError in err's chain.
func KindOf(err error) Kind {
	var cartErr *CartError
	if errors.As(err, &cartErr) {
		return cartErr.Kind
	}
	return KindOther
}

// RemoteStatusError is returned when the remote cart store answers with a
// non-2xx status.
type RemoteStatusError struct {
	StatusCode int
	Body       string
}

func (e *RemoteStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status of a RemoteStatusError in err's chain,
// or 0 when there is none.
func StatusCode(err error) int {
	var statusErr *RemoteStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// Is, As and Join re-export the standard library helpers so callers need a
// single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
