package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/genrelay/internal/api/shared"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/generation"
	"github.com/phrazzld/genrelay/internal/keypool"
	"github.com/phrazzld/genrelay/internal/provider"
	"github.com/phrazzld/genrelay/internal/service"
	"github.com/phrazzld/genrelay/internal/service/auth"
	"github.com/phrazzld/genrelay/internal/store"
)

// ErrInvalidPathParam is returned when a path parameter is missing or malformed.
var ErrInvalidPathParam = errors.New("invalid path parameter")

const genericErrorMessage = "An unexpected error occurred"

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInsufficientRole):
		return http.StatusForbidden

	// Capacity errors are retryable later, never a generic 500
	case errors.Is(err, keypool.ErrNoCapacity),
		errors.Is(err, keypool.ErrNoCredentials),
		errors.Is(err, service.ErrRefreshUnavailable):
		return http.StatusServiceUnavailable

	// Upstream errors
	case errors.Is(err, generation.ErrSubmitFailed),
		errors.Is(err, generation.ErrPollFailed),
		errors.Is(err, provider.ErrRejected):
		return http.StatusBadGateway

	// Not found errors
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, service.ErrCredentialNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrDuplicate),
		errors.Is(err, service.ErrCredentialExists),
		errors.Is(err, store.ErrConflict):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyPrompt),
		errors.Is(err, domain.ErrEmptyModel),
		errors.Is(err, domain.ErrEmptyCredentialSecret),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, generation.ErrUnknownModel),
		errors.Is(err, ErrInvalidPathParam),
		errors.Is(err, shared.ErrEmptyBody),
		errors.Is(err, shared.ErrInvalidBody),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return genericErrorMessage
	}

	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, auth.ErrInsufficientRole):
		return "Admin role required"

	case errors.Is(err, keypool.ErrNoCapacity),
		errors.Is(err, keypool.ErrNoCredentials):
		return "No generation capacity available, try again later"
	case errors.Is(err, service.ErrRefreshUnavailable):
		return "Credential refresh is not available"

	// The provider's own message is kept so operators and callers can see
	// why a submission was refused.
	case errors.Is(err, generation.ErrSubmitFailed),
		errors.Is(err, provider.ErrRejected):
		var rejected *provider.RejectedError
		if errors.As(err, &rejected) && rejected.Message != "" {
			return "Provider rejected the request: " + rejected.Message
		}
		return "Provider could not accept the request"
	case errors.Is(err, generation.ErrPollFailed):
		return "Provider status check failed"

	case errors.Is(err, store.ErrGenerationNotFound):
		return "Generation not found"
	case errors.Is(err, store.ErrCredentialNotFound),
		errors.Is(err, service.ErrCredentialNotFound):
		return "Credential not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, store.ErrCredentialExists),
		errors.Is(err, service.ErrCredentialExists):
		return "Credential already exists"
	case errors.Is(err, store.ErrConflict):
		return "Resource was modified concurrently"

	case errors.Is(err, generation.ErrUnknownModel):
		return "Unknown model"
	case errors.Is(err, domain.ErrEmptyPrompt):
		return "Invalid prompt: required field"
	case errors.Is(err, domain.ErrEmptyModel):
		return "Invalid model: required field"
	case errors.Is(err, domain.ErrEmptyCredentialSecret):
		return "Invalid secret: required field"
	case errors.Is(err, ErrInvalidPathParam):
		return "Invalid ID"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body required"
	case errors.Is(err, shared.ErrInvalidBody):
		return "Invalid request format"
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(err)
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Validation error"

	default:
		return genericErrorMessage
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message naming the first failing field.
func SanitizeValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		fe := validationErrs[0]
		field := strings.ToLower(fe.Field())
		if fe.Tag() != "" {
			return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(fe.Tag()))
		}
		return fmt.Sprintf("Invalid %s", field)
	}

	// Fall back to a generic validation error message
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "url", "http_url":
		return "invalid URL"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err. When the error
// is not one the API knows, fallback replaces the generic message so the
// client still learns which operation failed.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if message == genericErrorMessage && fallback != "" {
		message = fallback
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
