package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
)

// GenerationStore persists generation tasks.
// Version: 1.0
type GenerationStore interface {
	// Create saves a new generation task.
	Create(ctx context.Context, task *domain.GenerationTask) error

	// GetByID retrieves a task by its ID.
	// Returns ErrGenerationNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error)

	// GetByTaskID retrieves a task by its upstream provider task id.
	// Returns ErrGenerationNotFound if no task carries that id.
	GetByTaskID(ctx context.Context, taskID string) (*domain.GenerationTask, error)

	// Transition writes the task only if the stored row still has status
	// `from`. Returns ErrConflict when another writer moved the task first and
	// ErrGenerationNotFound if the task does not exist.
	Transition(ctx context.Context, task *domain.GenerationTask, from domain.GenerationStatus) error

	// FindByStatus returns tasks with the given status, oldest first.
	FindByStatus(ctx context.Context, status domain.GenerationStatus, limit int) ([]*domain.GenerationTask, error)
}
