package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GenerationStatus is the lifecycle state of a generation task.
type GenerationStatus string

// Possible generation status values
const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusEnhancing  GenerationStatus = "enhancing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// EnhancementStatus tracks the optional post-processing step independently of
// the task status.
type EnhancementStatus string

// Possible enhancement status values
const (
	EnhancementStatusNone       EnhancementStatus = "none"
	EnhancementStatusProcessing EnhancementStatus = "processing"
	EnhancementStatusCompleted  EnhancementStatus = "completed"
	EnhancementStatusFailed     EnhancementStatus = "failed"
)

// DefaultAspectRatio is used when a request does not name one.
const DefaultAspectRatio = "16:9"

// Validation errors for GenerationTask
var (
	ErrEmptyGenerationID = errors.New("generation ID cannot be empty")
	ErrEmptyPrompt       = errors.New("generation prompt cannot be empty")
	ErrEmptyModel        = errors.New("generation model cannot be empty")
	ErrEmptyUpstreamID   = errors.New("upstream task ID cannot be empty")
)

// GenerationRequest is what the caller asked the provider to produce.
type GenerationRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Model       string `json:"model"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Validate checks the request and fills in defaults.
func (r *GenerationRequest) Validate() error {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Model = strings.TrimSpace(r.Model)
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	if r.Model == "" {
		return ErrEmptyModel
	}
	if r.AspectRatio == "" {
		r.AspectRatio = DefaultAspectRatio
	}
	return nil
}

// GenerationTask is one generation request and its lifecycle record.
type GenerationTask struct {
	ID                 uuid.UUID         `json:"id"`
	TaskID             *string           `json:"task_id,omitempty"`
	CredentialID       *uuid.UUID        `json:"credential_id,omitempty"`
	Status             GenerationStatus  `json:"status"`
	Request            GenerationRequest `json:"request"`
	ResultURLs         []string          `json:"result_urls"`
	EnhancementStatus  EnhancementStatus `json:"enhancement_status"`
	EnhancedResultURLs []string          `json:"enhanced_result_urls"`
	ErrorMessage       *string           `json:"error_message,omitempty"`
	EnhancementError   *string           `json:"enhancement_error,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
}

// NewGenerationTask creates a pending task for the given request. The
// credential reserved for the submission is recorded for operator visibility.
func NewGenerationTask(req GenerationRequest, credentialID uuid.UUID) (*GenerationTask, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &GenerationTask{
		ID:                uuid.New(),
		Status:            GenerationStatusPending,
		Request:           req,
		EnhancementStatus: EnhancementStatusNone,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if credentialID != uuid.Nil {
		id := credentialID
		t.CredentialID = &id
	}

	return t, nil
}

// Validate checks if the GenerationTask has valid data.
func (t *GenerationTask) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyGenerationID
	}
	if !IsValidGenerationStatus(t.Status) {
		return ErrInvalidGenerationStatus
	}
	if !IsValidEnhancementStatus(t.EnhancementStatus) {
		return ErrInvalidEnhancementStatus
	}
	return t.Request.Validate()
}

// IsTerminal reports whether the task can no longer change status.
func (t *GenerationTask) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// IsTerminal reports whether the status is completed or failed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// UpstreamID returns the provider task id or an empty string.
func (t *GenerationTask) UpstreamID() string {
	if t.TaskID == nil {
		return ""
	}
	return *t.TaskID
}

// MarkSubmitted records a successful upstream submission: pending -> processing.
func (t *GenerationTask) MarkSubmitted(upstreamID string) error {
	if upstreamID == "" {
		return ErrEmptyUpstreamID
	}
	if t.Status != GenerationStatusPending {
		return t.transitionError(GenerationStatusProcessing)
	}
	t.TaskID = &upstreamID
	t.Status = GenerationStatusProcessing
	t.touch()
	return nil
}

// MarkFailed moves a pending or processing task to failed, keeping the
// provider's message verbatim. Failing an already failed task is a no-op.
func (t *GenerationTask) MarkFailed(message string) error {
	switch t.Status {
	case GenerationStatusFailed:
		return nil
	case GenerationStatusPending, GenerationStatusProcessing:
	default:
		return t.transitionError(GenerationStatusFailed)
	}
	t.Status = GenerationStatusFailed
	t.ErrorMessage = &message
	t.finish()
	return nil
}

// Complete marks a processing task completed with its provider result and no
// enhancement. Completing an already completed task is a no-op.
func (t *GenerationTask) Complete(resultURLs []string) error {
	switch t.Status {
	case GenerationStatusCompleted:
		return nil
	case GenerationStatusProcessing:
	default:
		return t.transitionError(GenerationStatusCompleted)
	}
	t.ResultURLs = copyURLs(resultURLs)
	t.Status = GenerationStatusCompleted
	t.finish()
	return nil
}

// BeginEnhancement records the provider result and hands the task to the
// enhancement step: processing -> enhancing.
func (t *GenerationTask) BeginEnhancement(resultURLs []string) error {
	if t.Status != GenerationStatusProcessing {
		return t.transitionError(GenerationStatusEnhancing)
	}
	t.ResultURLs = copyURLs(resultURLs)
	t.Status = GenerationStatusEnhancing
	t.EnhancementStatus = EnhancementStatusProcessing
	t.touch()
	return nil
}

// FinishEnhancement completes an enhancing task with the enhanced artifacts.
func (t *GenerationTask) FinishEnhancement(enhancedURLs []string) error {
	if t.Status != GenerationStatusEnhancing {
		return t.transitionError(GenerationStatusCompleted)
	}
	t.EnhancedResultURLs = copyURLs(enhancedURLs)
	t.EnhancementStatus = EnhancementStatusCompleted
	t.Status = GenerationStatusCompleted
	t.finish()
	return nil
}

// FailEnhancement completes an enhancing task without enhanced artifacts. The
// provider result stays usable, so the task status is completed regardless;
// only the enhancement status records the failure.
func (t *GenerationTask) FailEnhancement(message string) error {
	if t.Status != GenerationStatusEnhancing {
		return t.transitionError(GenerationStatusCompleted)
	}
	t.EnhancedResultURLs = nil
	t.EnhancementStatus = EnhancementStatusFailed
	t.EnhancementError = &message
	t.Status = GenerationStatusCompleted
	t.finish()
	return nil
}

func (t *GenerationTask) transitionError(to GenerationStatus) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
}

func (t *GenerationTask) touch() {
	t.UpdatedAt = time.Now().UTC()
}

func (t *GenerationTask) finish() {
	now := time.Now().UTC()
	t.UpdatedAt = now
	t.CompletedAt = &now
}

func copyURLs(urls []string) []string {
	if urls == nil {
		return nil
	}
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}

// IsValidGenerationStatus checks if the given status is a valid GenerationStatus.
func IsValidGenerationStatus(status GenerationStatus) bool {
	switch status {
	case GenerationStatusPending, GenerationStatusProcessing, GenerationStatusEnhancing,
		GenerationStatusCompleted, GenerationStatusFailed:
		return true
	default:
		return false
	}
}

// IsValidEnhancementStatus checks if the given status is a valid EnhancementStatus.
func IsValidEnhancementStatus(status EnhancementStatus) bool {
	switch status {
	case EnhancementStatusNone, EnhancementStatusProcessing,
		EnhancementStatusCompleted, EnhancementStatusFailed:
		return true
	default:
		return false
	}
}
