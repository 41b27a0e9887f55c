package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/api/shared"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/generation"
	"github.com/phrazzld/genrelay/internal/platform/logger"
)

// GenerationService is the part of the generation service the handler uses.
type GenerationService interface {
	Submit(ctx context.Context, req domain.GenerationRequest) (*generation.SubmitResult, error)
	Status(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)
}

// GenerationHandler handles generation requests
type GenerationHandler struct {
	generations GenerationService
	logger      *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(generations GenerationService, logger *slog.Logger) *GenerationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationHandler{
		generations: generations,
		logger:      logger.With("component", "generation_handler"),
	}
}

// CreateGeneration handles POST /api/generations
func (h *GenerationHandler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateGenerationRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.generations.Submit(r.Context(), req.ToDomain())
	if err != nil {
		if errors.Is(err, generation.ErrSubmitFailed) && result != nil && result.Task != nil {
			log.Warn("generation submission refused",
				"generation_id", result.Task.ID,
				"model", result.Task.Request.Model)
			snapshot := generationToResponse(result.Task)
			shared.RespondWithJSON(w, r, MapErrorToStatusCode(err), SubmitFailureResponse{
				Error:      GetSafeErrorMessage(err),
				TraceID:    shared.GetTraceID(r.Context()),
				Generation: &snapshot,
			})
			return
		}
		HandleAPIError(w, r, err, "Failed to submit generation")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitGenerationResponse{
		ID:                  result.Task.ID,
		TaskID:              result.Task.UpstreamID(),
		Status:              string(result.Task.Status),
		CreditsReserved:     result.CreditsReserved,
		PollIntervalSeconds: int(result.PollInterval.Seconds()),
		PollTimeoutSeconds:  int(result.PollTimeout.Seconds()),
	})
}

// GetGeneration handles GET /api/generations/{id}. A processing task is
// polled upstream once before the snapshot is returned. When the provider
// cannot be reached the stored snapshot is still returned.
func (h *GenerationHandler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.generations.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, generation.ErrPollFailed) && task != nil {
			log.Warn("returning stored snapshot after failed poll",
				"generation_id", id,
				"error", err)
			shared.RespondWithJSON(w, r, http.StatusOK, generationToResponse(task))
			return
		}
		HandleAPIError(w, r, err, "Failed to get generation")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, generationToResponse(task))
}
