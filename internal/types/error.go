package types

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// ValidationError marks inconsistent inputs (mismatched epoch/slot, missing
	// denominators). The whole run fails and re-running will not help.
	ValidationError ErrorCode = "VALIDATION_ERROR"
	// ComputationError is scoped to a single settlement, the batch continues.
	ComputationError     ErrorCode = "COMPUTATION_ERROR"
	RetryableError       ErrorCode = "RETRYABLE_ERROR"
	CriticalError        ErrorCode = "CRITICAL_ERROR"
	WarningError         ErrorCode = "WARNING_ERROR"
	InvariantViolation   ErrorCode = "INVARIANT_VIOLATION"
	ExecutionError       ErrorCode = "EXECUTION_ERROR"
	InternalServiceError ErrorCode = "INTERNAL_SERVICE_ERROR"
)

func (c ErrorCode) String() string {
	return string(c)
}

type Error struct {
	ErrorCode ErrorCode
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.ErrorCode.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(errorCode ErrorCode, err error) *Error {
	return &Error{
		ErrorCode: errorCode,
		Err:       err,
	}
}

func NewErrorWithMsg(errorCode ErrorCode, msg string) *Error {
	return &Error{
		ErrorCode: errorCode,
		Err:       errors.New(msg),
	}
}

func NewValidationError(format string, args ...any) *Error {
	return NewError(ValidationError, fmt.Errorf(format, args...))
}

// CodeOf returns the category of the first *Error found in the chain,
// InternalServiceError when the chain carries none.
func CodeOf(err error) ErrorCode {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.ErrorCode
	}
	return InternalServiceError
}

func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
