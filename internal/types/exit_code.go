package types

import "errors"

// Process exit codes of the settlement CLI. Callers re-invoke the whole batch
// only on ExitCodeRetryable.
const (
	ExitCodeSuccess   = 0
	ExitCodeGeneric   = 1
	ExitCodeCritical  = 2
	ExitCodeWarning   = 99
	ExitCodeRetryable = 100
)

func ExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var typed *Error
	if !errors.As(err, &typed) {
		return ExitCodeGeneric
	}

	switch typed.ErrorCode {
	case ValidationError, CriticalError, InvariantViolation:
		return ExitCodeCritical
	case WarningError:
		return ExitCodeWarning
	case RetryableError:
		return ExitCodeRetryable
	default:
		return ExitCodeGeneric
	}
}
