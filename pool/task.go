package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Engineer-s-Edge/enginedge-core-sub005/id"
)

// Task is one unit of work submitted to the execution pool. The payload
// is raw JSON decoded by the registered handler's definition.
type Task struct {
	// ID uniquely identifies this task.
	ID id.TaskID

	// Name selects the registered handler.
	Name string

	// Payload is the JSON-encoded handler input.
	Payload []byte

	// Priority determines queue ordering. Higher values run first.
	Priority int

	// Timeout bounds execution. Zero falls back to the pool default.
	Timeout time.Duration

	// EnqueuedAt breaks priority ties in submission order.
	EnqueuedAt time.Time
}

// Result is the outcome of one executed task.
type Result struct {
	// TaskID identifies the task this result belongs to.
	TaskID id.TaskID

	// Name is the task's handler name.
	Name string

	// Output is the handler's return value, nil on failure.
	Output any

	// Err is the handler error, nil on success.
	Err error

	// Elapsed is the handler execution time.
	Elapsed time.Duration
}

// Options configures per-task behavior.
type Options struct {
	// Priority determines queue ordering. Higher values run first.
	Priority int

	// Timeout is the maximum duration a task may run before being
	// cancelled. Zero falls back to the pool default.
	Timeout time.Duration
}

// Option is a functional option for task construction and definitions.
type Option func(*Options)

// WithPriority sets the task priority. Higher values run first.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithTimeout sets the maximum execution duration for the task.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// NewTask creates a task with a raw JSON payload.
func NewTask(name string, payload []byte, opts ...Option) *Task {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return &Task{
		ID:         id.NewTaskID(),
		Name:       name,
		Payload:    payload,
		Priority:   o.Priority,
		Timeout:    o.Timeout,
		EnqueuedAt: time.Now().UTC(),
	}
}

// NewTaskFor creates a task by JSON-encoding a typed payload.
func NewTaskFor[T any](name string, payload T, opts ...Option) (*Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for task %q: %w", name, err)
	}
	return NewTask(name, data, opts...), nil
}

// Definition is a typed task definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Name is the unique identifier for this task type.
	Name string

	// Handler processes the decoded payload and returns its output.
	Handler func(ctx context.Context, payload T) (any, error)

	// Opts sets the default priority and timeout for tasks of this type.
	Opts Options
}

// NewDefinition creates a typed task definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, payload T) (any, error), opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Name:    name,
		Handler: handler,
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
