package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/aescanero/dago-sandbox-router/internal/baggage"
)

// Task is the envelope of one unit of work.
type Task struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Payload    json.RawMessage        `json:"payload,omitempty"`
	Headers    propagation.MapCarrier `json:"headers,omitempty"`
	Attempt    int                    `json:"attempt"`
	Skips      int                    `json:"skips"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// New creates a task with a fresh id and the JSON encoding of payload.
func New(taskType string, payload any) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		Payload:    data,
		Headers:    propagation.MapCarrier{},
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// SetRoutingKey stamps the routing key into the task's baggage header.
func (t *Task) SetRoutingKey(key string) error {
	if t.Headers == nil {
		t.Headers = propagation.MapCarrier{}
	}
	return baggage.Inject(t.Headers, key)
}

// RoutingKey returns the routing key carried by the task, if any.
func (t *Task) RoutingKey() (string, bool) {
	if t.Headers == nil {
		return "", false
	}
	return baggage.RoutingKey(t.Headers)
}

// DecodePayload unmarshals the payload into v.
func (t *Task) DecodePayload(v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidTask)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("%w: failed to unmarshal payload: %v", ErrInvalidTask, err)
	}
	return nil
}

// Encode returns the JSON envelope.
func (t *Task) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// Decode parses a JSON envelope.
func Decode(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if t.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidTask)
	}
	if t.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidTask)
	}
	return &t, nil
}

// Result is the outcome of a handled task.
type Result struct {
	TaskID      string         `json:"task_id"`
	Type        string         `json:"type"`
	Success     bool           `json:"success"`
	Message     string         `json:"message,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Role        string         `json:"role,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}

// Handler executes a task.
type Handler interface {
	Handle(ctx context.Context, t *Task) (*Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *Task) (*Result, error)

// Handle calls f(ctx, t).
func (f HandlerFunc) Handle(ctx context.Context, t *Task) (*Result, error) {
	return f(ctx, t)
}
