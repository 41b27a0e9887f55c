package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/genrelay/internal/events"
)

// TaskSubmitter accepts tasks for background execution.
type TaskSubmitter interface {
	Submit(ctx context.Context, task Task) error
}

// EnhancementEventHandler turns enhancement events into EnhancementTasks and
// submits them to the runner. A submission error is returned to the emitter,
// which lets the producer fail the enhancement instead of losing it.
type EnhancementEventHandler struct {
	runner   TaskSubmitter
	enhancer Enhancer
	logger   *slog.Logger
}

// NewEnhancementEventHandler creates a handler submitting work to runner.
func NewEnhancementEventHandler(
	runner TaskSubmitter,
	enhancer Enhancer,
	logger *slog.Logger,
) *EnhancementEventHandler {
	return &EnhancementEventHandler{
		runner:   runner,
		enhancer: enhancer,
		logger:   logger.With("component", "enhancement_event_handler"),
	}
}

// HandleEvent processes events by creating and submitting tasks.
func (h *EnhancementEventHandler) HandleEvent(
	ctx context.Context,
	event *events.TaskRequestEvent,
) error {
	if event.Type != events.TypeEnhancementRequested {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload events.EnhancementPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	task, err := NewEnhancementTask(payload.GenerationID, payload.SourceURL, h.enhancer, h.logger)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"generation_id", payload.GenerationID,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.runner.Submit(ctx, task); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", task.ID(),
			"generation_id", payload.GenerationID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task created and submitted successfully",
		"task_id", task.ID(),
		"generation_id", payload.GenerationID,
		"event_id", event.ID)
	return nil
}

// Ensure EnhancementEventHandler implements events.EventHandler
var _ events.EventHandler = (*EnhancementEventHandler)(nil)
