// Package domainerrors provides code-tagged errors shared across services,
// stores, and transport. Handlers map codes onto HTTP statuses; services
// create or wrap with the code that describes the failure class.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and assertions in tests.
type Code string

const (
	CodeValidation      Code = "validation"       // construction-time input rejected
	CodeInvalidInput    Code = "invalid_input"    // malformed identifier or parameter
	CodeBadRequest      Code = "bad_request"      // request shape unusable
	CodePhaseViolation  Code = "phase_violation"  // operation outside its phase window or state rules
	CodeIntegrity       Code = "integrity"        // derived key mismatch, wrong owner, uninitialized ref
	CodeNumericOverflow Code = "numeric_overflow" // counter/size/delta arithmetic overflowed
	CodeTransferFailed  Code = "transfer_failed"  // value movement collaborator failed
	CodeConflict        Code = "conflict"         // entity already exists (create-if-absent collision)
	CodeNotFound        Code = "not_found"
	CodeUnauthorized    Code = "unauthorized"
	CodeForbidden       Code = "forbidden"
	CodeInternal        Code = "internal"
)

// Error carries a Code alongside the message and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a code-tagged error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a code-tagged error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Unwrap / errors.Is.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if errors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.cause
			continue
		}
		return false
	}
	return false
}

// Is is an alias for HasCode kept for call-site readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error is untagged.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
