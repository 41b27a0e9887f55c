package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/events"
)

// Common errors
var (
	ErrNilEnhancer       = errors.New("enhancer cannot be nil")
	ErrNilLogger         = errors.New("logger cannot be nil")
	ErrEmptyGenerationID = errors.New("generation ID cannot be empty")
	ErrEmptySourceURL    = errors.New("source URL cannot be empty")
)

// Enhancer post-processes a generation result. It records the outcome on the
// generation itself, success or failure.
type Enhancer interface {
	Enhance(ctx context.Context, generationID uuid.UUID, sourceURL string) error
}

// EnhancementTask implements the Task interface for enhancing the result of
// one generation.
type EnhancementTask struct {
	id           uuid.UUID
	generationID uuid.UUID
	sourceURL    string
	enhancer     Enhancer
	logger       *slog.Logger

	mu     sync.Mutex
	status TaskStatus
}

// NewEnhancementTask creates a new enhancement task
func NewEnhancementTask(
	generationID uuid.UUID,
	sourceURL string,
	enhancer Enhancer,
	logger *slog.Logger,
) (*EnhancementTask, error) {
	if enhancer == nil {
		return nil, ErrNilEnhancer
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if generationID == uuid.Nil {
		return nil, ErrEmptyGenerationID
	}
	if sourceURL == "" {
		return nil, ErrEmptySourceURL
	}

	return &EnhancementTask{
		id:           uuid.New(),
		generationID: generationID,
		sourceURL:    sourceURL,
		enhancer:     enhancer,
		logger:       logger.With("task_type", TaskTypeEnhancement, "generation_id", generationID),
		status:       TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *EnhancementTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *EnhancementTask) Type() string {
	return TaskTypeEnhancement
}

// GenerationID returns the generation being enhanced.
func (t *EnhancementTask) GenerationID() uuid.UUID {
	return t.generationID
}

// Payload returns the JSON encoded generation reference
func (t *EnhancementTask) Payload() []byte {
	data, err := json.Marshal(events.EnhancementPayload{
		GenerationID: t.generationID,
		SourceURL:    t.sourceURL,
	})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *EnhancementTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *EnhancementTask) setStatus(status TaskStatus) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()
}

// Execute runs the enhancement. Failures are already recorded on the
// generation by the enhancer, so the returned error is informational.
func (t *EnhancementTask) Execute(ctx context.Context) error {
	t.setStatus(TaskStatusProcessing)
	t.logger.Info("starting enhancement")

	if err := t.enhancer.Enhance(ctx, t.generationID, t.sourceURL); err != nil {
		t.setStatus(TaskStatusFailed)
		return err
	}

	t.setStatus(TaskStatusCompleted)
	t.logger.Info("enhancement finished")
	return nil
}
