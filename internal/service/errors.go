package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/genrelay/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in CredentialServiceError
// 3. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrCredentialNotFound indicates that the credential does not exist.
	// API layer should map this to HTTP 404 Not Found.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialExists indicates that the secret is already in the pool.
	// API layer should map this to HTTP 409 Conflict.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrRefreshUnavailable is returned when no refresher is configured.
	ErrRefreshUnavailable = errors.New("credential refresh is not available")
)

// CredentialServiceError wraps errors from the credential service with context.
type CredentialServiceError struct {
	// Operation is the operation that failed (e.g., "create_credential")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for CredentialServiceError.
func (e *CredentialServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("credential service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *CredentialServiceError) Unwrap() error {
	return e.Err
}

// NewCredentialServiceError creates a new CredentialServiceError.
// Known sentinel conditions are returned directly without wrapping.
func NewCredentialServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrCredentialNotFound), errors.Is(err, store.ErrCredentialNotFound):
		return ErrCredentialNotFound
	case errors.Is(err, ErrCredentialExists), errors.Is(err, store.ErrCredentialExists):
		return ErrCredentialExists
	}

	return &CredentialServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
