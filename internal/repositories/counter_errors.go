package repositories

import "fmt"

// CounterErrorKind categorises counter repository failures.
type CounterErrorKind string

const (
	// CounterErrorInvalidInput indicates the caller supplied an unusable id or step.
	CounterErrorInvalidInput CounterErrorKind = "invalid_input"
	// CounterErrorExhausted indicates the counter reached its configured maximum.
	CounterErrorExhausted CounterErrorKind = "exhausted"
)

// CounterError describes a counter repository failure with categorisation.
type CounterError struct {
	Kind    CounterErrorKind
	Message string
	cause   error
}

// NewCounterError constructs a CounterError wrapping an optional cause.
func NewCounterError(kind CounterErrorKind, message string, cause error) *CounterError {
	return &CounterError{Kind: kind, Message: message, cause: cause}
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("counter %s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("counter %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsNotFound always reports false; counters are created on first use.
func (e *CounterError) IsNotFound() bool { return false }

// IsConflict reports whether the counter is exhausted.
func (e *CounterError) IsConflict() bool { return e != nil && e.Kind == CounterErrorExhausted }

// IsUnavailable always reports false for counter errors.
func (e *CounterError) IsUnavailable() bool { return false }
