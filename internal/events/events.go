package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TypeEnhancementRequested is emitted when a generation enters the enhancing
// state and its result should be handed to the enhancement workers.
const TypeEnhancementRequested = "enhancement"

// TaskRequestEvent asks for background work to be scheduled. Producers build
// it without depending on the package that runs the work.
type TaskRequestEvent struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EnhancementPayload is the payload of a TypeEnhancementRequested event.
type EnhancementPayload struct {
	GenerationID uuid.UUID `json:"generation_id"`
	SourceURL    string    `json:"source_url"`
}

// UnmarshalPayload decodes the event payload into v.
func (e *TaskRequestEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskRequestEvent creates an event of the given type with a JSON payload.
func NewTaskRequestEvent(eventType string, payload any) (*TaskRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event payload: %w", eventType, err)
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewEnhancementEvent builds the event requesting enhancement of sourceURL.
func NewEnhancementEvent(generationID uuid.UUID, sourceURL string) (*TaskRequestEvent, error) {
	return NewTaskRequestEvent(TypeEnhancementRequested, EnhancementPayload{
		GenerationID: generationID,
		SourceURL:    sourceURL,
	})
}

// EventHandler processes events it is registered for.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *TaskRequestEvent) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *TaskRequestEvent) error {
	return f(ctx, event)
}

// EventEmitter publishes events without knowing who handles them.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
