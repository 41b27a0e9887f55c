package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/keypool"
	"github.com/phrazzld/genrelay/internal/redact"
	"github.com/samber/lo"
)

// CreateGenerationRequest is the payload for POST /api/generations.
type CreateGenerationRequest struct {
	Prompt      string `json:"prompt"                 validate:"required,max=4000"`
	AspectRatio string `json:"aspect_ratio,omitempty" validate:"omitempty,max=16"`
	Model       string `json:"model,omitempty"        validate:"omitempty,max=64"`
	ImageURL    string `json:"image_url,omitempty"    validate:"omitempty,url"`
}

// ToDomain converts the payload into a generation request.
func (r CreateGenerationRequest) ToDomain() domain.GenerationRequest {
	return domain.GenerationRequest{
		Prompt:      r.Prompt,
		AspectRatio: r.AspectRatio,
		Model:       r.Model,
		ImageURL:    r.ImageURL,
	}
}

// SubmitGenerationResponse is returned with 202 Accepted once the provider
// took the task. Clients poll GET /api/generations/{id} at PollIntervalSeconds
// and give up after PollTimeoutSeconds.
type SubmitGenerationResponse struct {
	ID                  uuid.UUID `json:"id"`
	TaskID              string    `json:"task_id"`
	Status              string    `json:"status"`
	CreditsReserved     int       `json:"credits_reserved"`
	PollIntervalSeconds int       `json:"poll_interval_seconds"`
	PollTimeoutSeconds  int       `json:"poll_timeout_seconds"`
}

// GenerationResponse is the snapshot of a generation task.
type GenerationResponse struct {
	ID                 uuid.UUID  `json:"id"`
	TaskID             *string    `json:"task_id,omitempty"`
	Status             string     `json:"status"`
	Prompt             string     `json:"prompt"`
	AspectRatio        string     `json:"aspect_ratio"`
	Model              string     `json:"model"`
	ImageURL           string     `json:"image_url,omitempty"`
	ResultURLs         []string   `json:"result_urls"`
	EnhancementStatus  string     `json:"enhancement_status"`
	EnhancedResultURLs []string   `json:"enhanced_result_urls"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	EnhancementError   *string    `json:"enhancement_error,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// SubmitFailureResponse is returned with 502 when the provider refused a
// submission. The failed record stays queryable under Generation.ID.
type SubmitFailureResponse struct {
	Error      string              `json:"error"`
	TraceID    string              `json:"trace_id,omitempty"`
	Generation *GenerationResponse `json:"generation,omitempty"`
}

// CreateCredentialRequest is the payload for POST /api/admin/credentials.
type CreateCredentialRequest struct {
	Name   string `json:"name,omitempty" validate:"omitempty,max=100"`
	Secret string `json:"secret"         validate:"required,min=8,max=512"`
}

// UpdateCredentialRequest is the payload for PATCH /api/admin/credentials/{id}.
type UpdateCredentialRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// CredentialResponse shows a credential with its secret masked.
type CredentialResponse struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Secret           string     `json:"secret"`
	CachedCredits    int        `json:"cached_credits"`
	IsActive         bool       `json:"is_active"`
	ManuallyDisabled bool       `json:"manually_disabled"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RefreshResponse summarizes a manual refresh pass.
type RefreshResponse struct {
	Checked     int                      `json:"checked"`
	Updated     int                      `json:"updated"`
	Deactivated int                      `json:"deactivated"`
	Failures    []keypool.RefreshFailure `json:"failures"`
	StartedAt   time.Time                `json:"started_at"`
	DurationMS  int64                    `json:"duration_ms"`
}

func generationToResponse(t *domain.GenerationTask) GenerationResponse {
	return GenerationResponse{
		ID:                 t.ID,
		TaskID:             t.TaskID,
		Status:             string(t.Status),
		Prompt:             t.Request.Prompt,
		AspectRatio:        t.Request.AspectRatio,
		Model:              t.Request.Model,
		ImageURL:           t.Request.ImageURL,
		ResultURLs:         t.ResultURLs,
		EnhancementStatus:  string(t.EnhancementStatus),
		EnhancedResultURLs: t.EnhancedResultURLs,
		ErrorMessage:       t.ErrorMessage,
		EnhancementError:   t.EnhancementError,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
		CompletedAt:        t.CompletedAt,
	}
}

func credentialToResponse(c *domain.Credential) CredentialResponse {
	return CredentialResponse{
		ID:               c.ID,
		Name:             c.Name,
		Secret:           redact.Secret(c.Secret),
		CachedCredits:    c.CachedCredits,
		IsActive:         c.IsActive,
		ManuallyDisabled: c.ManuallyDisabled,
		LastCheckedAt:    c.LastCheckedAt,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

func credentialsToResponse(creds []*domain.Credential) []CredentialResponse {
	return lo.Map(creds, func(c *domain.Credential, _ int) CredentialResponse {
		return credentialToResponse(c)
	})
}

func refreshToResponse(r *keypool.RefreshReport) RefreshResponse {
	failures := r.Failures
	if failures == nil {
		failures = []keypool.RefreshFailure{}
	}
	return RefreshResponse{
		Checked:     r.Checked,
		Updated:     r.Updated,
		Deactivated: r.Deactivated,
		Failures:    failures,
		StartedAt:   r.StartedAt,
		DurationMS:  r.Duration.Milliseconds(),
	}
}
