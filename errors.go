package aicore

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrConfiguration           = errors.New("aicore: configuration error")
	ErrAllCredentialsExhausted = errors.New("aicore: all credentials exhausted")
	ErrQuotaExceeded           = errors.New("aicore: quota exceeded")
	ErrAuthFailed              = errors.New("aicore: authentication failed")
	ErrTransport               = errors.New("aicore: transport error")
	ErrInvalidOutput           = errors.New("aicore: invalid structured output")
	ErrInvalidRequest          = errors.New("aicore: invalid request")
	ErrRetryBudgetExhausted    = errors.New("aicore: retry budget exhausted")
	ErrLeaseReleased           = errors.New("aicore: lease already released")
)

// RetryBudgetExhaustedError is returned when a call ran out of attempts.
// It matches both ErrRetryBudgetExhausted and the last underlying cause.
type RetryBudgetExhaustedError struct {
	CorrelationID string
	Attempts      int
	Last          error
}

func (e *RetryBudgetExhaustedError) Error() string {
	return fmt.Sprintf("aicore: retry budget exhausted: correlation_id=%s attempts=%d: %v",
		e.CorrelationID, e.Attempts, e.Last)
}

func (e *RetryBudgetExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrRetryBudgetExhausted}
	}
	return []error{ErrRetryBudgetExhausted, e.Last}
}

// IsQuotaExceeded reports whether err is a provider rate-limit rejection.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsAuthFailure reports whether err means the credential itself is invalid.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsTerminal reports whether err is one of the errors a caller should treat
// as "the operation ultimately failed".
func IsTerminal(err error) bool {
	return errors.Is(err, ErrRetryBudgetExhausted) ||
		errors.Is(err, ErrAllCredentialsExhausted) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvalidRequest)
}

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}
