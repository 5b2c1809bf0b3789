package errors

import (
	"fmt"
)

// ConfigError reports a configuration value that makes an operation impossible.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface for ConfigError.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a new ConfigError instance.
func NewConfigError(field, reason string) error {
	return &ConfigError{
		Field:  field,
		Reason: reason,
	}
}

// APIError represents a non-success response of the scanning service.
type APIError struct {
	Operation  string
	StatusCode int
	Message    string
}

// Error implements the error interface, preferring the message provided by the server.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed (status %d): %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed with status %d", e.Operation, e.StatusCode)
}

// NewAPIError creates a new APIError instance.
func NewAPIError(operation string, statusCode int, message string) *APIError {
	return &APIError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// CommandError carries the process exit code of a failed command.
type CommandError struct {
	ExitCode int
	Err      error
}

// Error implements the error interface, returning the message of the wrapped error.
func (e *CommandError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError instance.
func NewCommandError(err error, code int) *CommandError {
	return &CommandError{
		ExitCode: code,
		Err:      err,
	}
}
