package runner

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrNoOperationsRegistered = errors.New("no operations registered")
	ErrOperationTimeout       = errors.New("operation timeout")
)

type (
	// BenchmarkError is the base error for harness operations
	BenchmarkError struct {
		Op  string // Operation that failed
		Err error  // The underlying error
	}

	// ConfigError reports a single rejected configuration field
	ConfigError struct {
		BenchmarkError
		Field string
		Value string
	}

	// TimeoutError reports an invocation that did not return within the timeout
	TimeoutError struct {
		BenchmarkError
		Fork      int
		Operation string
		Timeout   time.Duration
	}
)

func (e BenchmarkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e BenchmarkError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s=%q", e.BenchmarkError.Error(), e.Field, e.Value)
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fork %d: %s: invocation exceeded %v: %v", e.Fork, e.Operation, e.Timeout, e.Err)
}

// IsConfigError checks if the error is a ConfigError
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsTimeoutError checks if the error is a TimeoutError
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

func invalid(field string, value any) error {
	return &ConfigError{
		BenchmarkError: BenchmarkError{Op: "validate", Err: ErrInvalidConfiguration},
		Field:          field,
		Value:          fmt.Sprint(value),
	}
}
