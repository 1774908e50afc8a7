package broker

import (
	"context"
	"errors"
	"time"

	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/flow"
)

var (
	ErrActorNotFound = errors.New("actor not found")
	ErrNoHandler     = errors.New("handler is required")
)

// Actor describes a registered task function.
type Actor struct {
	Name      string
	QueueName string
	Priority  int
	Options   map[string]any
}

// EventKind enumerates the lifecycle notifications a broker emits.
type EventKind string

const (
	EventAfterEnqueue        EventKind = "after_enqueue"
	EventBeforeProcess       EventKind = "before_process_message"
	EventAfterProcess        EventKind = "after_process_message"
	EventAfterSkip           EventKind = "after_skip_message"
	EventAfterCancel         EventKind = "after_message_canceled"
	EventBeforeBuildPipeline EventKind = "before_build_pipeline"
	EventBeforeBuildGroup    EventKind = "before_build_group"
)

// Event carries the fields relevant to its kind. Message is set for per-message
// events; PipelineID with Messages for pipeline builds; GroupID with
// MessageIDs for group builds.
type Event struct {
	Kind       EventKind
	OccurredAt time.Time
	Message    flow.Message
	Delay      time.Duration
	Result     any
	Err        error

	PipelineID string
	Messages   []flow.Message

	GroupID    string
	MessageIDs []collection.IDNode
}

// Observer receives lifecycle events synchronously, in registration order.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

func (f ObserverFunc) Observe(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// ActorLookup resolves actor descriptors by name.
type ActorLookup interface {
	GetActor(name string) (Actor, error)
}

// Handler executes one message and returns its result.
type Handler func(ctx context.Context, msg flow.Message) (any, error)
