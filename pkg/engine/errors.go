package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassValidation indicates invalid input before execution started.
	// Examples: unknown install strategy, malformed inventory, bad selector.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassTransient indicates a temporary failure outside task execution.
	// Examples: connection setup timeouts. Task failures are never transient.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Every task failure during a run is permanent: the run aborts and the
	// operator intervenes. There is no retry or rollback inside a role.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with host and task context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Host is the target host the error occurred on, if applicable.
	Host string `json:"host,omitempty"`

	// Task is the task being executed when the error occurred.
	Task string `json:"task,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Host != "" && e.Task != "" {
		return fmt.Sprintf("[%s] %s (host=%s, task=%s): %s",
			e.Class, e.Message, e.Host, e.Task, e.unwrapMessage())
	}
	if e.Host != "" {
		return fmt.Sprintf("[%s] %s (host=%s): %s",
			e.Class, e.Message, e.Host, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// unwrapMessage returns the error message from the underlying error chain.
func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassValidation,
		Message: message,
		Code:    ErrCodeValidation,
		Err:     err,
	}
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithHost adds host context to an error.
func (e *EngineError) WithHost(host string) *EngineError {
	e.Host = host
	return e
}

// WithTask adds task context to an error.
func (e *EngineError) WithTask(task string) *EngineError {
	e.Task = task
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConnectFailed = "CONNECT_FAILED"
	ErrCodeTaskFailed    = "TASK_FAILED"
	ErrCodeHandlerFailed = "HANDLER_FAILED"
	ErrCodeFactsFailed   = "FACTS_FAILED"
	ErrCodePolicyDenied  = "POLICY_DENIED"
	ErrCodeArchiveFailed = "ARCHIVE_FAILED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodeInternal      = "INTERNAL_ERROR"
)
