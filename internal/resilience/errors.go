package resilience

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is the fail-fast sentinel: the call was rejected without
// attempting the underlying operation. Match with errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitOpenError carries the rejecting component's name. It matches
// ErrCircuitOpen under errors.Is.
type CircuitOpenError struct {
	Component string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open for %q", e.Component)
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// NoRetry marks an error as non-retryable.
//
// Callers wrap validation errors or other permanent failures with NoRetry so
// Retry propagates them immediately instead of burning attempts.
//
// Example:
//
//	return resilience.NoRetry(fmt.Errorf("bad input: %w", err))
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
