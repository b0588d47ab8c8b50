// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrAssistantTimeout indicates an assistant run did not finish within its budget.
	ErrAssistantTimeout = errors.New("assistant run timed out")

	// ErrSessionUnavailable indicates the session store could not be reached.
	ErrSessionUnavailable = errors.New("session store unavailable")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidInput indicates user provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnauthorized indicates a request without a valid task secret.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrQuizExpired indicates the pending quiz state expired or is missing.
	ErrQuizExpired = errors.New("quiz state expired")
)

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// CoachError represents a chat-completion call failure with provider context.
type CoachError struct {
	Provider   string
	Task       string
	StatusCode int
	Err        error
}

func (e *CoachError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("coach error (provider=%s, task=%s, status=%d): %v", e.Provider, e.Task, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("coach error (provider=%s, task=%s): %v", e.Provider, e.Task, e.Err)
}

func (e *CoachError) Unwrap() error {
	return e.Err
}

// NewCoachError creates a new coach error.
func NewCoachError(provider, task string, statusCode int, err error) *CoachError {
	return &CoachError{
		Provider:   provider,
		Task:       task,
		StatusCode: statusCode,
		Err:        err,
	}
}
