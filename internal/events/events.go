package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the task subsystem.
const (
	// EventTaskUpdated carries a partial task update (progress, job ids,
	// intermediate status) applied during a poll iteration.
	EventTaskUpdated = "task.updated"

	// EventTaskCompleted signals a terminal successful transition for a
	// task phase, with a human-readable summary message.
	EventTaskCompleted = "task.completed"

	// EventTaskFailed signals a terminal failed transition, with the
	// failure reason and message.
	EventTaskFailed = "task.failed"

	// EventNotice carries an ambient user-facing message not tied to a
	// single task transition (the UI renders these as toasts).
	EventNotice = "notice"
)

// TaskEvent represents a task lifecycle notification published by the
// poll scheduler. It contains the task identity and a JSON payload
// without direct dependencies on the task package.
type TaskEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is one of the Event* constants
	Type string `json:"type"`

	// TaskID identifies the task the event refers to; uuid.Nil for
	// ambient notices
	TaskID uuid.UUID `json:"task_id,omitempty"`

	// Payload contains the event-specific data serialized as JSON
	Payload json.RawMessage `json:"payload,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskEvent creates a new TaskEvent with the specified type, task ID
// and payload.
func NewTaskEvent(eventType string, taskID uuid.UUID, payload interface{}) (*TaskEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &TaskEvent{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *TaskEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the scheduler to publish notifications without direct
// knowledge of subscribers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *TaskEvent) error
}
