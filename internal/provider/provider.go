// Package provider defines the contracts the core consumes from the upstream
// generation provider: a credit oracle, a submit/poll generation API and the
// normalized poll result.
package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRejected is returned when the provider answers a request with a
	// provider-level error. The message from the provider is preserved.
	ErrRejected = errors.New("provider rejected request")

	// ErrOracleUnavailable is returned when a credit balance could not be
	// obtained (network, auth, malformed response).
	ErrOracleUnavailable = errors.New("credit oracle unavailable")

	// ErrUnavailable is returned when the provider is throttling or failing
	// server-side. It says nothing about the task and is safe to retry.
	ErrUnavailable = errors.New("provider temporarily unavailable")

	// ErrCredentialRejected is returned when the provider refuses the
	// credential used for a call. Another credential may still succeed.
	ErrCredentialRejected = errors.New("provider rejected credential")
)

// RejectedError carries the provider's code and message for a rejection.
// It matches ErrRejected with errors.Is.
type RejectedError struct {
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s (code %d): %s", ErrRejected, e.Code, e.Message)
}

// Is makes errors.Is(err, ErrRejected) succeed.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Rejected builds a RejectedError.
func Rejected(code int, message string) error {
	return &RejectedError{Code: code, Message: message}
}

// RejectionMessage returns the provider message carried by err, or err's text
// when it is not a RejectedError.
func RejectionMessage(err error) string {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.Message
	}
	return err.Error()
}

// CreditOracle reports the current credit balance for a credential secret.
type CreditOracle interface {
	CheckCredits(ctx context.Context, secret string) (int, error)
}

// SubmitPayload is the provider-facing form of a generation request.
type SubmitPayload struct {
	Prompt      string
	AspectRatio string
	Model       string
	ImageURL    string
}

// GenerationProvider submits generation jobs and reports their progress.
// Poll is a read-only status query and may use any known credential.
type GenerationProvider interface {
	Submit(ctx context.Context, payload SubmitPayload, secret string) (string, error)
	Poll(ctx context.Context, taskID string, secret string) (PollResult, error)
}
