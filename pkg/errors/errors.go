package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrCancelled indicates the caller cancelled the operation
	ErrCancelled = errors.New("operation cancelled")
)

// Model gateway errors

var (
	// ErrBackendUnavailable indicates a model backend cannot be reached
	ErrBackendUnavailable = errors.New("model backend unavailable")

	// ErrInvalidResponse indicates model output could not be parsed as the
	// expected structure
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrRoleNotConfigured indicates no backend is bound to a model role
	ErrRoleNotConfigured = errors.New("model role not configured")

	// ErrRetriesExhausted indicates the retry budget ran out
	ErrRetriesExhausted = errors.New("retry budget exhausted")
)

// Tool errors

var (
	// ErrUnknownTool indicates a tool name has no registered descriptor
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolExecution indicates a tool handler failed
	ErrToolExecution = errors.New("tool execution failed")
)

// Guardrail errors

var (
	// ErrGuardrailFailed indicates a guardrail stage errored, as opposed to a
	// stage voting deny; both map to a denied verdict (fail-closed)
	ErrGuardrailFailed = errors.New("guardrail stage failed")

	// ErrTradeBlocked indicates a sensitive action was denied by guardrails
	ErrTradeBlocked = errors.New("trade blocked by guardrails")

	// ErrTurnBudgetExceeded indicates the planning/tool round-trip cap was hit
	ErrTurnBudgetExceeded = errors.New("turn round-trip budget exceeded")
)

// DomainError wraps an error with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
