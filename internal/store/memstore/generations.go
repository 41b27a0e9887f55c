package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/store"
)

// GenerationStore implements store.GenerationStore in memory, including the
// compare-and-set semantics of Transition.
type GenerationStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*domain.GenerationTask

	// TransitionErr, when set, is returned by Transition before any write.
	TransitionErr error
}

var _ store.GenerationStore = (*GenerationStore)(nil)

// NewGenerationStore creates an empty store.
func NewGenerationStore() *GenerationStore {
	return &GenerationStore{items: make(map[uuid.UUID]*domain.GenerationTask)}
}

// Create saves a new task.
func (s *GenerationStore) Create(ctx context.Context, task *domain.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[task.ID]; ok {
		return store.ErrDuplicate
	}
	s.items[task.ID] = copyTask(task)
	return nil
}

// GetByID returns a copy of the task.
func (s *GenerationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.items[id]
	if !ok {
		return nil, store.ErrGenerationNotFound
	}
	return copyTask(t), nil
}

// GetByTaskID finds a task by upstream id.
func (s *GenerationStore) GetByTaskID(ctx context.Context, taskID string) (*domain.GenerationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.items {
		if t.UpstreamID() == taskID {
			return copyTask(t), nil
		}
	}
	return nil, store.ErrGenerationNotFound
}

// Transition writes task only if the stored status is still from.
func (s *GenerationStore) Transition(
	ctx context.Context,
	task *domain.GenerationTask,
	from domain.GenerationStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.TransitionErr != nil {
		return s.TransitionErr
	}
	current, ok := s.items[task.ID]
	if !ok {
		return store.ErrGenerationNotFound
	}
	if current.Status != from {
		return store.ErrConflict
	}
	s.items[task.ID] = copyTask(task)
	return nil
}

// FindByStatus returns tasks with status, oldest first.
func (s *GenerationStore) FindByStatus(
	ctx context.Context,
	status domain.GenerationStatus,
	limit int,
) ([]*domain.GenerationTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.GenerationTask
	for _, t := range s.items {
		if t.Status == status {
			out = append(out, copyTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores task unconditionally, for test setup.
func (s *GenerationStore) Put(task *domain.GenerationTask) {
	s.mu.Lock()
	s.items[task.ID] = copyTask(task)
	s.mu.Unlock()
}

func copyTask(t *domain.GenerationTask) *domain.GenerationTask {
	cp := *t
	cp.ResultURLs = append([]string(nil), t.ResultURLs...)
	cp.EnhancedResultURLs = append([]string(nil), t.EnhancedResultURLs...)
	return &cp
}
