package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockTask is a configurable implementation of the Task interface for tests
// in this and other packages.
type MockTask struct {
	TaskID      uuid.UUID
	TaskType    string
	TaskPayload []byte
	ExecuteFn   func(ctx context.Context) error

	mu     sync.Mutex
	status TaskStatus
}

// NewMockTask creates a new MockTask with the given type and payload
func NewMockTask(taskType string, payload []byte) *MockTask {
	return &MockTask{
		TaskID:      uuid.New(),
		TaskType:    taskType,
		TaskPayload: payload,
		status:      TaskStatusPending,
	}
}

// ID returns the task's unique identifier
func (t *MockTask) ID() uuid.UUID {
	return t.TaskID
}

// Type returns the task type identifier
func (t *MockTask) Type() string {
	return t.TaskType
}

// Payload returns the task data as a byte slice
func (t *MockTask) Payload() []byte {
	return t.TaskPayload
}

// Status returns the current task status
func (t *MockTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Execute runs ExecuteFn when set and tracks the resulting status.
func (t *MockTask) Execute(ctx context.Context) error {
	var err error
	if t.ExecuteFn != nil {
		err = t.ExecuteFn(ctx)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.status = TaskStatusFailed
	} else {
		t.status = TaskStatusCompleted
	}
	return err
}
