// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a generation task is asked to move
	// along an edge that its lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid generation status transition")

	// ErrInvalidGenerationStatus is returned when a status value is unknown.
	ErrInvalidGenerationStatus = errors.New("invalid generation status")

	// ErrInvalidEnhancementStatus is returned when an enhancement status value is unknown.
	ErrInvalidEnhancementStatus = errors.New("invalid enhancement status")
)
